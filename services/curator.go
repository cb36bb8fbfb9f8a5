package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"catalog-hand/config"
	"catalog-hand/dedupe"
	"catalog-hand/merge"
	"catalog-hand/models"
	"catalog-hand/storage"
)

var (
	mergesExecutedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_merges_executed_total",
			Help: "Total number of executed merge groups, by entity kind.",
		},
		[]string{"kind"},
	)
	mergesBlockedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_merges_blocked_total",
			Help: "Total number of merge groups blocked by validation, by entity kind.",
		},
		[]string{"kind"},
	)
	duplicateGroupsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_duplicate_groups_last_scan",
			Help: "Duplicate groups found by the most recent full scan, by entity kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(mergesExecutedCounter, mergesBlockedCounter, duplicateGroupsGauge)
}

// ScanSummary ist das Ergebnis eines kompletten Duplikat-Laufs.
type ScanSummary struct {
	AuthorGroups      int `json:"author_groups"`
	ContainerGroups   int `json:"container_groups"`
	PublicationGroups int `json:"publication_groups"`
	Merged            int `json:"merged"`
	Blocked           int `json:"blocked"`
}

// CurationService orchestriert Duplikatsuche und Merges. Merges laufen
// über ein Mutex strikt nacheinander; überlappende Gruppen aus zwei
// gleichzeitigen Anstößen können sich so keine halb gelöschten Zeilen
// ansehen.
type CurationService struct {
	Config  *config.Config
	Store   *storage.Store
	Finder  dedupe.Finder
	Scanner *dedupe.Scanner
	Logger  *zap.Logger

	mergeMu sync.Mutex
}

// NewCurationService erstellt den Service samt Scanner.
func NewCurationService(cfg *config.Config, store *storage.Store, finder dedupe.Finder, logger *zap.Logger) *CurationService {
	return &CurationService{
		Config:  cfg,
		Store:   store,
		Finder:  finder,
		Scanner: dedupe.NewScanner(store.DB(), finder, cfg.DedupeChunkSize, logger),
		Logger:  logger,
	}
}

// MergeAuthors validiert und mergt die angegebenen Autoren unter einem
// MERGE-Command. Die erste ID wird Final.
func (s *CurationService) MergeAuthors(ctx context.Context, ids []uint, creator string, force bool) error {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	authors, err := loadByIDs[models.Author](ctx, s.Store, ids)
	if err != nil {
		return err
	}
	if len(authors) < 2 {
		return nil
	}
	group := merge.NewAuthorMergeGroup(authors[0], authors[1:])
	if _, err := group.IsValid(ctx, s.Store.DB()); err != nil {
		return err
	}
	cmd := s.newMergeCommand(creator, fmt.Sprintf("merge authors %v", ids))
	err = s.Store.Transaction(ctx, cmd, func(tx *storage.AuditedTx) error {
		return group.Merge(ctx, tx, force)
	})
	if err != nil {
		return err
	}
	mergesExecutedCounter.WithLabelValues("author").Inc()
	return nil
}

// MergeContainers validiert und mergt die angegebenen Container. Bei
// einem ISSN-Konflikt kommt der Befund zurück und nichts wird
// geschrieben (außer force ist gesetzt).
func (s *CurationService) MergeContainers(ctx context.Context, ids []uint, creator string, force bool) (*merge.ISSNConflictError, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	containers, err := loadByIDs[models.Container](ctx, s.Store, ids)
	if err != nil {
		return nil, err
	}
	if len(containers) < 2 {
		return nil, nil
	}
	group := merge.ContainerGroupFromList(containers)
	valid, err := group.IsValid(ctx, s.Store.DB())
	if err != nil {
		return nil, err
	}
	if !valid && !force {
		mergesBlockedCounter.WithLabelValues("container").Inc()
		return group.Conflict(), nil
	}
	cmd := s.newMergeCommand(creator, fmt.Sprintf("merge containers %v", ids))
	err = s.Store.Transaction(ctx, cmd, func(tx *storage.AuditedTx) error {
		return group.Merge(ctx, tx, force)
	})
	if err != nil {
		return group.Conflict(), err
	}
	mergesExecutedCounter.WithLabelValues("container").Inc()
	return nil, nil
}

// MergePublications wählt das autoritative Final, validiert die Gruppe
// und mergt sie. Ein blockierender Befund kommt als Report zurück.
func (s *CurationService) MergePublications(ctx context.Context, ids []uint, creator string, force bool) (*merge.ValidationReport, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()
	return s.mergePublicationsLocked(ctx, ids, creator, force)
}

func (s *CurationService) mergePublicationsLocked(ctx context.Context, ids []uint, creator string, force bool) (*merge.ValidationReport, error) {
	pubs, err := loadByIDs[models.Publication](ctx, s.Store, ids)
	if err != nil {
		return nil, err
	}
	if len(pubs) < 2 {
		return nil, nil
	}
	group := merge.FindAuthoritative(pubs)
	valid, err := group.IsValid(ctx, s.Store.DB())
	if err != nil {
		return nil, err
	}
	if !valid && !force {
		mergesBlockedCounter.WithLabelValues("publication").Inc()
		return group.Report(), nil
	}
	cmd := s.newMergeCommand(creator, fmt.Sprintf("merge publications %v", ids))
	err = s.Store.Transaction(ctx, cmd, func(tx *storage.AuditedTx) error {
		return group.Merge(ctx, tx, force)
	})
	if err != nil {
		return group.Report(), err
	}
	mergesExecutedCounter.WithLabelValues("publication").Inc()
	return nil, nil
}

// RunFullScan läuft einmal komplett über Autoren, Container und
// Publikationen, mergt jede valide Gruppe und zählt blockierte Gruppen.
// Jede Gruppe läuft unter ihrem eigenen MERGE-Command; ein Fehlschlag
// rollt nur die eigene Gruppe zurück.
func (s *CurationService) RunFullScan(ctx context.Context, creator string) (ScanSummary, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	var summary ScanSummary

	mergedAuthors := map[uint]bool{}
	err := s.Scanner.ScanAuthors(ctx, func(a models.Author, dups []models.Author) error {
		if mergedAuthors[a.ID] {
			return nil
		}
		summary.AuthorGroups++
		ids := []uint{a.ID}
		for _, d := range dups {
			ids = append(ids, d.ID)
		}
		group := merge.NewAuthorMergeGroup(&a, toPointers(dups))
		if _, err := group.IsValid(ctx, s.Store.DB()); err != nil {
			return err
		}
		cmd := s.newMergeCommand(creator, fmt.Sprintf("scan merge authors %v", ids))
		err := s.Store.Transaction(ctx, cmd, func(tx *storage.AuditedTx) error {
			return group.Merge(ctx, tx, false)
		})
		if err != nil {
			s.Logger.Error("author merge failed", zap.Uints("ids", ids), zap.Error(err))
			summary.Blocked++
			mergesBlockedCounter.WithLabelValues("author").Inc()
			return nil
		}
		summary.Merged++
		mergesExecutedCounter.WithLabelValues("author").Inc()
		for _, id := range ids {
			mergedAuthors[id] = true
		}
		return nil
	})
	if err != nil {
		return summary, err
	}
	duplicateGroupsGauge.WithLabelValues("author").Set(float64(summary.AuthorGroups))

	mergedContainers := map[uint]bool{}
	err = s.Scanner.ScanContainers(ctx, func(c models.Container, dups []models.Container) error {
		if mergedContainers[c.ID] {
			return nil
		}
		summary.ContainerGroups++
		group := merge.NewContainerMergeGroup(&c, toPointers(dups))
		valid, err := group.IsValid(ctx, s.Store.DB())
		if err != nil {
			return err
		}
		if !valid {
			s.Logger.Warn("container merge blocked", zap.String("conflict", group.Conflict().Error()))
			summary.Blocked++
			mergesBlockedCounter.WithLabelValues("container").Inc()
			return nil
		}
		cmd := s.newMergeCommand(creator, fmt.Sprintf("scan merge container %d", c.ID))
		err = s.Store.Transaction(ctx, cmd, func(tx *storage.AuditedTx) error {
			return group.Merge(ctx, tx, false)
		})
		if err != nil {
			s.Logger.Error("container merge failed", zap.Uint("id", c.ID), zap.Error(err))
			summary.Blocked++
			return nil
		}
		summary.Merged++
		mergesExecutedCounter.WithLabelValues("container").Inc()
		mergedContainers[c.ID] = true
		for _, d := range dups {
			mergedContainers[d.ID] = true
		}
		return nil
	})
	if err != nil {
		return summary, err
	}
	duplicateGroupsGauge.WithLabelValues("container").Set(float64(summary.ContainerGroups))

	merged := map[uint]bool{}
	err = s.Scanner.ScanPublications(ctx, func(p models.Publication, dups []models.Publication) error {
		if merged[p.ID] {
			return nil
		}
		summary.PublicationGroups++
		ids := []uint{p.ID}
		for _, d := range dups {
			if merged[d.ID] {
				return nil
			}
			ids = append(ids, d.ID)
		}
		report, err := s.mergePublicationsLocked(ctx, ids, creator, false)
		if err != nil {
			s.Logger.Error("publication merge failed", zap.Uints("ids", ids), zap.Error(err))
			summary.Blocked++
			return nil
		}
		if report != nil {
			summary.Blocked++
			return nil
		}
		summary.Merged++
		for _, id := range ids {
			merged[id] = true
		}
		return nil
	})
	if err != nil {
		return summary, err
	}
	duplicateGroupsGauge.WithLabelValues("publication").Set(float64(summary.PublicationGroups))

	return summary, nil
}

func (s *CurationService) newMergeCommand(creator, message string) *models.AuditCommand {
	return &models.AuditCommand{
		Action:  models.ActionMerge,
		Role:    models.RoleCuratorEdit,
		Creator: creator,
		Message: message,
	}
}

func loadByIDs[T any](ctx context.Context, store *storage.Store, ids []uint) ([]*T, error) {
	loaded := make([]*T, 0, len(ids))
	for _, id := range ids {
		var entity T
		if err := store.DB().WithContext(ctx).First(&entity, id).Error; err != nil {
			return nil, fmt.Errorf("load id %d: %w", id, err)
		}
		loaded = append(loaded, &entity)
	}
	return loaded, nil
}

func toPointers[T any](items []T) []*T {
	out := make([]*T, 0, len(items))
	for i := range items {
		out = append(out, &items[i])
	}
	return out
}
