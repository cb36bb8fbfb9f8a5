package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"catalog-hand/models"
	"catalog-hand/storage"
)

// ISSNConflictError beschreibt, warum ein Container-Merge blockiert
// ist: mehr als eine unterschiedliche nicht-leere ISSN in der Gruppe.
// Für den Kurator stehen sowohl die ISSNs als auch die vollständige
// Containerliste im Befund.
type ISSNConflictError struct {
	ISSNs      []string
	Containers []*models.Container
}

func (e *ISSNConflictError) Error() string {
	names := make([]string, 0, len(e.Containers))
	for _, c := range e.Containers {
		names = append(names, c.LogLabel())
	}
	return fmt.Sprintf("conflicting ISSNs %s across containers [%s]",
		strings.Join(e.ISSNs, ", "), strings.Join(names, "; "))
}

// ContainerMergeGroup konsolidiert N Container-Datensätze zu einem.
type ContainerMergeGroup struct {
	Final  *models.Container
	Others []*models.Container

	state    ValidationState
	conflict *ISSNConflictError
}

// NewContainerMergeGroup erstellt die Gruppe. Kommt Final in Others
// vor, wird der Eintrag stillschweigend verworfen.
func NewContainerMergeGroup(final *models.Container, others []*models.Container) *ContainerMergeGroup {
	g := &ContainerMergeGroup{Final: final}
	for _, o := range others {
		if o.ID == final.ID {
			continue
		}
		g.Others = append(g.Others, o)
	}
	return g
}

// ContainerGroupFromList macht aus einer Duplikat-Kandidatenliste eine
// Gruppe; das erste Element wird Final.
func ContainerGroupFromList(containers []*models.Container) *ContainerMergeGroup {
	if len(containers) == 0 {
		return nil
	}
	return NewContainerMergeGroup(containers[0], containers[1:])
}

// State gibt den aktuellen Zustand der Gruppe zurück.
func (g *ContainerMergeGroup) State() ValidationState {
	return g.state
}

// Conflict gibt den Befund der letzten Validierung zurück, nil wenn
// die Gruppe gültig ist oder noch nicht validiert wurde.
func (g *ContainerMergeGroup) Conflict() *ISSNConflictError {
	return g.conflict
}

// Members gibt Final plus Others zurück.
func (g *ContainerMergeGroup) Members() []*models.Container {
	members := make([]*models.Container, 0, len(g.Others)+1)
	members = append(members, g.Final)
	members = append(members, g.Others...)
	return members
}

// IsValid validiert die Gruppe: sicher mergebar genau dann, wenn über
// Final und Others höchstens eine unterschiedliche nicht-leere ISSN
// vorkommt. Zwei Container mit verschiedenen ISSNs sind verschiedene
// Organe, egal wie ähnlich die Namen sind. Idempotent und memoisiert.
func (g *ContainerMergeGroup) IsValid(ctx context.Context, db *gorm.DB) (bool, error) {
	if g.state != StateUnvalidated {
		return g.state == StateValid || g.state == StateMerged, nil
	}
	issns := map[string]bool{}
	for _, c := range g.Members() {
		if c.ISSN != "" {
			issns[c.ISSN] = true
		}
	}
	if len(issns) <= 1 {
		g.state = StateValid
		return true, nil
	}
	distinct := make([]string, 0, len(issns))
	for issn := range issns {
		distinct = append(distinct, issn)
	}
	sort.Strings(distinct)
	g.conflict = &ISSNConflictError{ISSNs: distinct, Containers: g.Members()}
	g.state = StateInvalid
	return false, nil
}

// Merge führt die Konsolidierung in der übergebenen Transaktion aus.
// IsValid muss vorher aufgerufen worden sein; bei invalider Gruppe
// kommt ErrInvalidGroup mit dem Konflikt im Fehlerpfad zurück, außer
// force ist gesetzt.
func (g *ContainerMergeGroup) Merge(ctx context.Context, tx *storage.AuditedTx, force bool) error {
	if err := guardMerge(g.state, force); err != nil {
		if g.conflict != nil && errors.Is(err, ErrInvalidGroup) {
			return fmt.Errorf("%w: %s", err, g.conflict.Error())
		}
		return err
	}
	for _, other := range g.Others {
		if err := g.mergeOne(ctx, tx, other); err != nil {
			return fmt.Errorf("merge container %d into %d: %w", other.ID, g.Final.ID, err)
		}
	}
	g.state = StateMerged
	return nil
}

func (g *ContainerMergeGroup) mergeOne(ctx context.Context, tx *storage.AuditedTx, other *models.Container) error {
	if other.Name != "" && other.Name != g.Final.Name {
		if err := ensureContainerAlias(tx, g.Final.ID, other.Name); err != nil {
			return err
		}
	}

	var aliases []models.ContainerAlias
	if err := tx.DB().Where("container_id = ?", other.ID).Order("id").Find(&aliases).Error; err != nil {
		return err
	}
	for i := range aliases {
		alias := &aliases[i]
		duplicate, err := containerAliasExists(tx, g.Final.ID, alias.Name)
		if err != nil {
			return err
		}
		if duplicate {
			if err := tx.LogDelete(alias); err != nil {
				return err
			}
			continue
		}
		if err := tx.LogUpdate(alias, map[string]any{"container_id": g.Final.ID}); err != nil {
			return err
		}
	}

	var pubs []models.Publication
	if err := tx.DB().Where("container_id = ?", other.ID).Order("id").Find(&pubs).Error; err != nil {
		return err
	}
	for i := range pubs {
		if err := tx.LogUpdate(&pubs[i], map[string]any{"container_id": g.Final.ID}); err != nil {
			return err
		}
	}

	var raws []models.Raw
	if err := tx.DB().Where("container_id = ?", other.ID).Order("id").Find(&raws).Error; err != nil {
		return err
	}
	for i := range raws {
		if err := tx.LogUpdate(&raws[i], map[string]any{"container_id": g.Final.ID}); err != nil {
			return err
		}
	}

	changes := map[string]any{}
	if g.Final.ISSN == "" && other.ISSN != "" {
		changes["issn"] = other.ISSN
		g.Final.ISSN = other.ISSN
	}
	if g.Final.Name == "" && other.Name != "" {
		changes["name"] = other.Name
		g.Final.Name = other.Name
	}
	if g.Final.Type == "" && other.Type != "" {
		changes["type"] = other.Type
		g.Final.Type = other.Type
	}
	if len(changes) > 0 {
		if err := tx.LogUpdate(g.Final, changes); err != nil {
			return err
		}
	}

	return tx.LogDelete(other)
}

func ensureContainerAlias(tx *storage.AuditedTx, containerID uint, name string) error {
	exists, err := containerAliasExists(tx, containerID, name)
	if err != nil || exists {
		return err
	}
	return tx.LogCreate(&models.ContainerAlias{Name: name, ContainerID: containerID})
}

func containerAliasExists(tx *storage.AuditedTx, containerID uint, name string) (bool, error) {
	var alias models.ContainerAlias
	err := tx.DB().
		Where("container_id = ? AND name = ?", containerID, name).
		First(&alias).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}
