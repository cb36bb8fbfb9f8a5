package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"catalog-hand/models"
	"catalog-hand/storage"
)

// SharedReferrer ist eine dritte Publikation, die mehr als ein Mitglied
// der Merge-Gruppe zitiert. Das spricht dagegen, dass die Mitglieder
// wirklich Duplikate sind, oder der zitierende Datensatz braucht selbst
// erst eine Reconciliation.
type SharedReferrer struct {
	PublicationID uint
	CitedMembers  []uint
}

// ClosureMismatch beschreibt eine Container-Gruppe, die nicht exakt die
// von den Mitgliedern referenzierten Container abdeckt.
type ClosureMismatch struct {
	GroupContainers      []uint
	ReferencedContainers []uint
}

// OutsideAuthor ist ein Autor eines Mitglieds, der auch Publikationen
// außerhalb der Gruppe hat. Wird gemeldet, blockiert aber nicht.
type OutsideAuthor struct {
	AuthorID            uint
	OutsidePublications []uint
}

// ValidationReport ist der strukturierte Befund der Publikations-
// Validierung. Jeder Slot steht für eine unabhängige Prüfung; ein
// leerer Slot heißt bestanden. Der Kurator sieht so genau, was einen
// Merge blockiert, ohne dass sich die Prüfungen gegenseitig verdecken.
type ValidationReport struct {
	// CitationCounts ist befüllt, wenn mehr als ein unterschiedlicher
	// Zitatzählerstand ungleich null vorkommt (Zählerstand -> Mitglieder).
	CitationCounts map[int64][]uint
	// SharedReferrers sind Publikationen, die mehrere Mitglieder zitieren.
	SharedReferrers []SharedReferrer
	// ContainerConflict ist der Befund der eingebetteten Container-Gruppe.
	ContainerConflict *ISSNConflictError
	// ContainerClosure ist befüllt, wenn die Container-Gruppe nicht zur
	// Containermenge der Mitglieder passt.
	ContainerClosure *ClosureMismatch
	// OutsideAuthors werden gemeldet, blockieren aber nie.
	OutsideAuthors []OutsideAuthor
}

// Blocking meldet, ob einer der harten Slots befüllt ist.
// OutsideAuthors zählen bewusst nicht dazu.
func (r *ValidationReport) Blocking() bool {
	return len(r.CitationCounts) > 0 ||
		len(r.SharedReferrers) > 0 ||
		r.ContainerConflict != nil ||
		r.ContainerClosure != nil
}

// PublicationMergeGroup konsolidiert N Publikations-Datensätze zu
// einem und zieht dabei Autoren, Container, Rohdaten und Seitentabellen
// mit. Die komplexeste Merge-Variante, weil sie eine Container-Gruppe
// und eine bewusst lockere Autoren-Zusammenführung einbettet.
type PublicationMergeGroup struct {
	Final  *models.Publication
	Others []*models.Publication

	// ContainerGroup kann vom Aufrufer vorgegeben werden; bleibt das
	// Feld nil, baut die Validierung die Gruppe aus den Containern der
	// Mitglieder selbst auf. Der Closure-Check läuft in beiden Fällen.
	ContainerGroup *ContainerMergeGroup

	state  ValidationState
	report *ValidationReport
}

// NewPublicationMergeGroup erstellt die Gruppe. Kommt Final in Others
// vor, wird der Eintrag stillschweigend verworfen.
func NewPublicationMergeGroup(final *models.Publication, others []*models.Publication) *PublicationMergeGroup {
	g := &PublicationMergeGroup{Final: final}
	for _, o := range others {
		if o.ID == final.ID {
			continue
		}
		g.Others = append(g.Others, o)
	}
	return g
}

// FindAuthoritative bestimmt aus einer Duplikatliste das Final: die
// erste als primär markierte Publikation, sonst das erste Element.
// Direkt ingestierte Datensätze sind vertrauenswürdiger als solche, die
// nur aus fremden Referenzlisten bekannt sind.
func FindAuthoritative(pubs []*models.Publication) *PublicationMergeGroup {
	if len(pubs) == 0 {
		return nil
	}
	finalIdx := 0
	for i, p := range pubs {
		if p.IsPrimary {
			finalIdx = i
			break
		}
	}
	final := pubs[finalIdx]
	others := make([]*models.Publication, 0, len(pubs)-1)
	for i, p := range pubs {
		if i == finalIdx {
			continue
		}
		others = append(others, p)
	}
	return NewPublicationMergeGroup(final, others)
}

// State gibt den aktuellen Zustand der Gruppe zurück.
func (g *PublicationMergeGroup) State() ValidationState {
	return g.state
}

// Report gibt den Befund der letzten Validierung zurück, nil solange
// IsValid nicht aufgerufen wurde.
func (g *PublicationMergeGroup) Report() *ValidationReport {
	return g.report
}

// Members gibt Final plus Others zurück.
func (g *PublicationMergeGroup) Members() []*models.Publication {
	members := make([]*models.Publication, 0, len(g.Others)+1)
	members = append(members, g.Final)
	members = append(members, g.Others...)
	return members
}

func (g *PublicationMergeGroup) memberIDs() []uint {
	ids := make([]uint, 0, len(g.Others)+1)
	for _, m := range g.Members() {
		ids = append(ids, m.ID)
	}
	return ids
}

// IsValid führt die fünf unabhängigen Prüfungen aus und memoisiert das
// Ergebnis. Nur Lesezugriffe; der Befund steht danach in Report.
func (g *PublicationMergeGroup) IsValid(ctx context.Context, db *gorm.DB) (bool, error) {
	if g.state != StateUnvalidated {
		return g.state == StateValid || g.state == StateMerged, nil
	}
	report := &ValidationReport{}

	if err := g.checkCitationCounts(ctx, db, report); err != nil {
		return false, err
	}
	if err := g.checkSharedReferrers(ctx, db, report); err != nil {
		return false, err
	}
	if err := g.checkContainers(ctx, db, report); err != nil {
		return false, err
	}
	if err := g.checkOutsideAuthors(ctx, db, report); err != nil {
		return false, err
	}

	g.report = report
	if report.Blocking() {
		g.state = StateInvalid
		return false, nil
	}
	g.state = StateValid
	return true, nil
}

// checkCitationCounts gruppiert die Mitglieder nach Zitatanzahl. Mehr
// als ein unterschiedlicher Stand ungleich null heißt: unklar, wessen
// Zitatliste maßgeblich ist.
func (g *PublicationMergeGroup) checkCitationCounts(ctx context.Context, db *gorm.DB, report *ValidationReport) error {
	byCount := map[int64][]uint{}
	for _, m := range g.Members() {
		var count int64
		err := db.WithContext(ctx).Model(&models.PublicationCitations{}).
			Where("publication_id = ?", m.ID).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("count citations of %d: %w", m.ID, err)
		}
		byCount[count] = append(byCount[count], m.ID)
	}
	nonZero := 0
	for count := range byCount {
		if count != 0 {
			nonZero++
		}
	}
	if nonZero > 1 {
		report.CitationCounts = byCount
	}
	return nil
}

// checkSharedReferrers sucht dritte Publikationen, die mindestens zwei
// Mitglieder der Gruppe zitieren.
func (g *PublicationMergeGroup) checkSharedReferrers(ctx context.Context, db *gorm.DB, report *ValidationReport) error {
	memberIDs := g.memberIDs()
	var links []models.PublicationCitations
	err := db.WithContext(ctx).
		Where("citation_id IN ?", memberIDs).
		Where("publication_id NOT IN ?", memberIDs).
		Order("id").
		Find(&links).Error
	if err != nil {
		return fmt.Errorf("find referrers: %w", err)
	}
	cited := map[uint][]uint{}
	for _, link := range links {
		cited[link.PublicationID] = append(cited[link.PublicationID], link.CitationID)
	}
	referrers := make([]uint, 0, len(cited))
	for id, members := range cited {
		if len(members) > 1 {
			referrers = append(referrers, id)
		}
	}
	sort.Slice(referrers, func(i, j int) bool { return referrers[i] < referrers[j] })
	for _, id := range referrers {
		members := cited[id]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		report.SharedReferrers = append(report.SharedReferrers, SharedReferrer{
			PublicationID: id,
			CitedMembers:  members,
		})
	}
	return nil
}

// checkContainers baut (oder übernimmt) die eingebettete Container-
// Gruppe, validiert sie und prüft, dass sie exakt die Container der
// Mitglieder abdeckt.
func (g *PublicationMergeGroup) checkContainers(ctx context.Context, db *gorm.DB, report *ValidationReport) error {
	referenced, err := g.referencedContainers(ctx, db)
	if err != nil {
		return err
	}
	if g.ContainerGroup == nil {
		g.ContainerGroup = ContainerGroupFromList(referenced)
	}
	if g.ContainerGroup == nil {
		return nil
	}

	if _, err := g.ContainerGroup.IsValid(ctx, db); err != nil {
		return err
	}
	report.ContainerConflict = g.ContainerGroup.Conflict()

	groupIDs := containerIDSet(g.ContainerGroup.Members())
	referencedIDs := containerIDSet(referenced)
	if !equalIDSets(groupIDs, referencedIDs) {
		report.ContainerClosure = &ClosureMismatch{
			GroupContainers:      groupIDs,
			ReferencedContainers: referencedIDs,
		}
	}
	return nil
}

// referencedContainers lädt die distinkte Containermenge der Mitglieder
// in Mitglieder-Reihenfolge (Final zuerst).
func (g *PublicationMergeGroup) referencedContainers(ctx context.Context, db *gorm.DB) ([]*models.Container, error) {
	seen := map[uint]bool{}
	var containers []*models.Container
	for _, m := range g.Members() {
		if m.ContainerID == nil || seen[*m.ContainerID] {
			continue
		}
		seen[*m.ContainerID] = true
		var c models.Container
		if err := db.WithContext(ctx).First(&c, *m.ContainerID).Error; err != nil {
			return nil, fmt.Errorf("load container %d: %w", *m.ContainerID, err)
		}
		containers = append(containers, &c)
	}
	return containers, nil
}

// checkOutsideAuthors meldet Autoren der Mitglieder, die auch außerhalb
// der Gruppe publiziert haben. Autoren mit breiterem Werk sind zu
// erwarten, deshalb ist der Slot rein informativ.
func (g *PublicationMergeGroup) checkOutsideAuthors(ctx context.Context, db *gorm.DB, report *ValidationReport) error {
	memberIDs := g.memberIDs()
	var authorIDs []uint
	err := db.WithContext(ctx).Model(&models.PublicationAuthors{}).
		Where("publication_id IN ?", memberIDs).
		Distinct("author_id").
		Order("author_id").
		Pluck("author_id", &authorIDs).Error
	if err != nil {
		return fmt.Errorf("load member authors: %w", err)
	}
	for _, authorID := range authorIDs {
		var outside []uint
		err := db.WithContext(ctx).Model(&models.PublicationAuthors{}).
			Where("author_id = ?", authorID).
			Where("publication_id NOT IN ?", memberIDs).
			Order("publication_id").
			Pluck("publication_id", &outside).Error
		if err != nil {
			return fmt.Errorf("load outside publications of author %d: %w", authorID, err)
		}
		if len(outside) > 0 {
			report.OutsideAuthors = append(report.OutsideAuthors, OutsideAuthor{
				AuthorID:            authorID,
				OutsidePublications: outside,
			})
		}
	}
	return nil
}

// Merge führt die Konsolidierung in der übergebenen Transaktion aus.
// IsValid muss vorher aufgerufen worden sein. Die Zitatlisten der
// Others werden nicht auf Final übernommen, auch wenn Final keine hat;
// das ist eine bekannte Lücke und bleibt bewusst so.
func (g *PublicationMergeGroup) Merge(ctx context.Context, tx *storage.AuditedTx, force bool) error {
	if err := guardMerge(g.state, force); err != nil {
		if g.report != nil && errors.Is(err, ErrInvalidGroup) && g.report.ContainerConflict != nil {
			return fmt.Errorf("%w: %s", err, g.report.ContainerConflict.Error())
		}
		return err
	}

	if err := g.mergeAuthors(ctx, tx); err != nil {
		return err
	}

	if g.ContainerGroup != nil && len(g.ContainerGroup.Others) > 0 {
		if _, err := g.ContainerGroup.IsValid(ctx, tx.DB()); err != nil {
			return err
		}
		if err := g.ContainerGroup.Merge(ctx, tx, force); err != nil {
			return fmt.Errorf("merge containers: %w", err)
		}
	}

	for _, other := range g.Others {
		if err := g.mergeOne(ctx, tx, other); err != nil {
			return fmt.Errorf("merge publication %d into %d: %w", other.ID, g.Final.ID, err)
		}
	}
	g.state = StateMerged
	return nil
}

// mergeAuthors führt Autoren der Mitglieder mit identischem Namenspaar
// zusammen. Bewusst locker: was hier nicht eindeutig ist, bleibt
// einfach getrennt stehen.
func (g *PublicationMergeGroup) mergeAuthors(ctx context.Context, tx *storage.AuditedTx) error {
	memberIDs := g.memberIDs()
	var authors []models.Author
	err := tx.DB().
		Joins("JOIN publication_authors ON publication_authors.author_id = authors.id").
		Where("publication_authors.publication_id IN ?", memberIDs).
		Distinct("authors.*").
		Order("authors.id").
		Find(&authors).Error
	if err != nil {
		return fmt.Errorf("load authors for merge: %w", err)
	}

	type nameKey struct{ family, given string }
	byName := map[nameKey][]*models.Author{}
	var order []nameKey
	for i := range authors {
		a := &authors[i]
		key := nameKey{family: a.FamilyName, given: a.GivenName}
		if _, ok := byName[key]; !ok {
			order = append(order, key)
		}
		byName[key] = append(byName[key], a)
	}

	for _, key := range order {
		group := byName[key]
		if len(group) < 2 {
			continue
		}
		ag := NewAuthorMergeGroup(group[0], group[1:])
		if _, err := ag.IsValid(ctx, tx.DB()); err != nil {
			return err
		}
		if err := ag.Merge(ctx, tx, false); err != nil {
			return fmt.Errorf("merge authors %q %q: %w", key.family, key.given, err)
		}
	}
	return nil
}

func (g *PublicationMergeGroup) mergeOne(ctx context.Context, tx *storage.AuditedTx, other *models.Publication) error {
	var raws []models.Raw
	if err := tx.DB().Where("publication_id = ?", other.ID).Order("id").Find(&raws).Error; err != nil {
		return err
	}
	for i := range raws {
		if err := tx.LogUpdate(&raws[i], map[string]any{"publication_id": g.Final.ID}); err != nil {
			return err
		}
	}

	changes := map[string]any{}
	if g.Final.DatePublishedText == "" && other.DatePublishedText != "" {
		changes["date_published_text"] = other.DatePublishedText
		g.Final.DatePublishedText = other.DatePublishedText
	}
	if g.Final.Title == "" && other.Title != "" {
		changes["title"] = other.Title
		g.Final.Title = other.Title
	}
	if g.Final.DOI == "" && other.DOI != "" {
		changes["doi"] = other.DOI
		g.Final.DOI = other.DOI
	}
	if g.Final.ISI == "" && other.ISI != "" {
		changes["isi"] = other.ISI
		g.Final.ISI = other.ISI
	}
	if g.Final.Abstract == "" && other.Abstract != "" {
		changes["abstract"] = other.Abstract
		g.Final.Abstract = other.Abstract
	}
	if len(changes) > 0 {
		if err := tx.LogUpdate(g.Final, changes); err != nil {
			return err
		}
	}

	if err := g.pruneOrphanedCitations(ctx, tx, other); err != nil {
		return err
	}
	if err := g.deleteOther(ctx, tx, other); err != nil {
		return err
	}
	return nil
}

// pruneOrphanedCitations löscht die Zitate von other, die nicht primär
// sind und von genau einer Publikation referenziert werden: reine
// Referenzlisten-Stubs, die nach dem Merge niemand mehr braucht.
// Mehrfach referenzierte Zitate bleiben unangetastet, auch wenn other
// gelöscht wird.
func (g *PublicationMergeGroup) pruneOrphanedCitations(ctx context.Context, tx *storage.AuditedTx, other *models.Publication) error {
	var links []models.PublicationCitations
	if err := tx.DB().Where("publication_id = ?", other.ID).Order("id").Find(&links).Error; err != nil {
		return err
	}
	for i := range links {
		link := &links[i]
		var cited models.Publication
		if err := tx.DB().First(&cited, link.CitationID).Error; err != nil {
			return fmt.Errorf("load citation %d: %w", link.CitationID, err)
		}
		if cited.IsPrimary {
			continue
		}
		var referrers int64
		err := tx.DB().Model(&models.PublicationCitations{}).
			Where("citation_id = ?", cited.ID).
			Count(&referrers).Error
		if err != nil {
			return err
		}
		if referrers != 1 {
			continue
		}
		if err := tx.LogDelete(link); err != nil {
			return err
		}
		if err := deletePublicationRows(tx, &cited); err != nil {
			return err
		}
	}
	return nil
}

// deleteOther hängt die Verknüpfungen von other auf Final um und
// löscht dann den Datensatz. Eingehende Zitatkanten zeigen danach auf
// Final, damit fremde Referenzlisten nicht ins Leere laufen; Autoren-
// und Seitentabellen-Verknüpfungen wandern mit Dedup mit.
func (g *PublicationMergeGroup) deleteOther(ctx context.Context, tx *storage.AuditedTx, other *models.Publication) error {
	var authorLinks []models.PublicationAuthors
	if err := tx.DB().Where("publication_id = ?", other.ID).Order("id").Find(&authorLinks).Error; err != nil {
		return err
	}
	for i := range authorLinks {
		link := &authorLinks[i]
		var count int64
		err := tx.DB().Model(&models.PublicationAuthors{}).
			Where("publication_id = ? AND author_id = ?", g.Final.ID, link.AuthorID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			if err := tx.LogDelete(link); err != nil {
				return err
			}
			continue
		}
		if err := tx.LogUpdate(link, map[string]any{"publication_id": g.Final.ID}); err != nil {
			return err
		}
	}

	for _, rel := range publicationRelations {
		if err := rel.Merge(tx, other.ID, g.Final.ID); err != nil {
			return err
		}
	}

	var incoming []models.PublicationCitations
	if err := tx.DB().Where("citation_id = ?", other.ID).Order("id").Find(&incoming).Error; err != nil {
		return err
	}
	for i := range incoming {
		link := &incoming[i]
		var count int64
		err := tx.DB().Model(&models.PublicationCitations{}).
			Where("publication_id = ? AND citation_id = ?", link.PublicationID, g.Final.ID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			if err := tx.LogDelete(link); err != nil {
				return err
			}
			continue
		}
		if err := tx.LogUpdate(link, map[string]any{"citation_id": g.Final.ID}); err != nil {
			return err
		}
	}
	return deletePublicationRows(tx, other)
}

// deletePublicationRows löscht eine Publikation samt ihrer eigenen
// Verknüpfungszeilen (Autoren, Zitatkanten, Seitentabellen).
func deletePublicationRows(tx *storage.AuditedTx, p *models.Publication) error {
	var authorLinks []models.PublicationAuthors
	if err := tx.DB().Where("publication_id = ?", p.ID).Order("id").Find(&authorLinks).Error; err != nil {
		return err
	}
	for i := range authorLinks {
		if err := tx.LogDelete(&authorLinks[i]); err != nil {
			return err
		}
	}

	var citationLinks []models.PublicationCitations
	if err := tx.DB().Where("publication_id = ?", p.ID).Order("id").Find(&citationLinks).Error; err != nil {
		return err
	}
	for i := range citationLinks {
		if err := tx.LogDelete(&citationLinks[i]); err != nil {
			return err
		}
	}

	for _, rel := range publicationRelations {
		if err := rel.Delete(tx, p.ID); err != nil {
			return err
		}
	}

	return tx.LogDelete(p)
}

func containerIDSet(containers []*models.Container) []uint {
	ids := make([]uint, 0, len(containers))
	seen := map[uint]bool{}
	for _, c := range containers {
		if c == nil || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func equalIDSets(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
