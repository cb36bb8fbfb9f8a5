package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"catalog-hand/models"
	"catalog-hand/reconcile"
	"catalog-hand/storage"
)

// Bekannte Rohfelder einer Beobachtung. Alles andere landet in der
// Unplaced-Liste des Aufrufers.
const (
	FieldYear      = "year"
	FieldTitle     = "title"
	FieldDOI       = "doi"
	FieldJournal   = "journal"
	FieldBookTitle = "booktitle"
	FieldType      = "type"
	FieldAbstract  = "abstract"
	FieldAuthor    = "author"
)

// Entry ist eine einzelne Rohbeobachtung aus einer Quelle.
type Entry struct {
	Source    reconcile.Source
	Fields    map[string]string
	IsPrimary bool
}

// IngestSource liefert Rohbeobachtungen an eine Session. Jede Pipeline
// (BibTeX-Datei, Referenz-Parser, Metadaten-API) implementiert dieses
// Interface.
type IngestSource interface {
	// Entries liefert alle Beobachtungen der Quelle.
	Entries(ctx context.Context) ([]Entry, error)
	// Name gibt den eindeutigen Namen der Quelle zurück (z.B. "bibtex").
	Name() string
}

// Session ist der Zustand genau eines Ingestion-Laufs. Die Zuordnung
// von externem Schlüssel zu Kandidat lebt hier und nicht in
// prozessweiten Variablen; zwei parallele Läufe sehen sich nicht.
type Session struct {
	threshold int
	logger    *zap.Logger

	byKey        map[string]*reconcile.Publication
	byRef        map[string]*reconcile.Publication
	publications []*reconcile.Publication
}

// NewSession erstellt eine leere Session mit dem gegebenen
// Matching-Schwellwert.
func NewSession(threshold int, logger *zap.Logger) *Session {
	return &Session{
		threshold: threshold,
		logger:    logger,
		byKey:     map[string]*reconcile.Publication{},
		byRef:     map[string]*reconcile.Publication{},
	}
}

// Publications gibt alle Kandidaten des Laufs in Einfüge-Reihenfolge
// zurück.
func (s *Session) Publications() []*reconcile.Publication {
	return s.publications
}

// Add verarbeitet eine Beobachtung: baut den Kandidaten, gleicht ihn
// gegen die schon bekannten Kandidaten ab und verschmilzt bei einem
// eindeutigen Treffer. Zurück kommen der (neue oder verschmolzene)
// Kandidat und die Liste der Feldnamen, die nicht zugeordnet werden
// konnten.
func (s *Session) Add(e Entry) (*reconcile.Publication, []string, error) {
	candidate, unplaced, err := s.buildCandidate(e)
	if err != nil {
		return nil, nil, err
	}

	if doi := candidate.DOI.Value(); doi != "" {
		if existing, ok := s.byKey[doi]; ok {
			existing.Update(candidate, s.threshold)
			return existing, unplaced, nil
		}
	}

	matched := candidate.Matches(s.publications, s.threshold)
	if len(matched) == 1 {
		existing := s.publications[matched[0]]
		existing.Update(candidate, s.threshold)
		s.index(existing)
		return existing, unplaced, nil
	}
	if len(matched) > 1 {
		s.logger.Warn("ambiguous publication match, keeping candidate separate",
			zap.String("title", candidate.Title.Value()),
			zap.Int("matches", len(matched)))
	}

	s.publications = append(s.publications, candidate)
	s.index(candidate)
	return candidate, unplaced, nil
}

// AddReference verarbeitet einen Referenzlisten-Eintrag, geschlüsselt
// über den rohen Referenz-String. Gleiche Strings innerhalb eines Laufs
// ergeben denselben sekundären Kandidaten.
func (s *Session) AddReference(ref string, e Entry) (*reconcile.Publication, []string, error) {
	key := reconcile.NormalizeName(ref)
	if existing, ok := s.byRef[key]; ok {
		candidate, unplaced, err := s.buildCandidate(e)
		if err != nil {
			return nil, nil, err
		}
		existing.Update(candidate, s.threshold)
		return existing, unplaced, nil
	}
	e.IsPrimary = false
	candidate, unplaced, err := s.Add(e)
	if err != nil {
		return nil, nil, err
	}
	s.byRef[key] = candidate
	return candidate, unplaced, nil
}

// Run zieht alle Beobachtungen einer Quelle durch die Session.
func (s *Session) Run(ctx context.Context, src IngestSource) error {
	entries, err := src.Entries(ctx)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Name(), err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, unplaced, err := s.Add(e); err != nil {
			s.logger.Warn("entry rejected",
				zap.String("source", src.Name()),
				zap.Error(err))
		} else if len(unplaced) > 0 {
			s.logger.Debug("unplaced fields",
				zap.String("source", src.Name()),
				zap.Strings("fields", unplaced))
		}
	}
	return nil
}

func (s *Session) index(p *reconcile.Publication) {
	if doi := p.DOI.Value(); doi != "" {
		s.byKey[doi] = p
	}
}

func (s *Session) buildCandidate(e Entry) (*reconcile.Publication, []string, error) {
	fields := reconcile.PublicationFields{IsPrimary: e.IsPrimary}
	var unplaced []string

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(e.Fields[key])
		if value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case FieldYear:
			year, err := strconv.Atoi(value)
			if err != nil {
				unplaced = append(unplaced, key)
				continue
			}
			fields.Year = year
		case FieldTitle:
			fields.Title = reconcile.SanitizeName(value)
		case FieldDOI:
			fields.DOI = value
		case FieldJournal, FieldBookTitle:
			fields.ContainerName = reconcile.SanitizeName(value)
		case FieldType:
			fields.ContainerType = value
		case FieldAbstract:
			fields.Abstract = value
		case FieldAuthor:
			fields.Authors = parseAuthors(e.Source, value)
		default:
			unplaced = append(unplaced, key)
		}
	}

	p, err := reconcile.NewPublication(e.Source, fields)
	if err != nil {
		return nil, nil, err
	}
	return p, unplaced, nil
}

// parseAuthors zerlegt ein BibTeX-Autorenfeld ("Doe, Jane and Roe, R").
// Ohne Komma gilt das letzte Wort als Familienname.
func parseAuthors(src reconcile.Source, raw string) []*reconcile.Author {
	var authors []*reconcile.Author
	for _, part := range strings.Split(raw, " and ") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var family, given string
		if idx := strings.Index(part, ","); idx >= 0 {
			family = part[:idx]
			given = strings.TrimSpace(part[idx+1:])
		} else {
			words := strings.Fields(part)
			family = words[len(words)-1]
			given = strings.Join(words[:len(words)-1], " ")
		}
		authors = append(authors, reconcile.NewAuthor(src, family, given))
	}
	return authors
}

// Persist schreibt alle Kandidaten der Session unter einem einzigen
// LOAD-Command in die Datenbank: Container und Autoren werden per
// Schlüssel wiederverwendet, jede Beobachtungshistorie landet als
// Raw-Zeile.
func (s *Session) Persist(ctx context.Context, store *storage.Store, creator string) error {
	cmd := &models.AuditCommand{
		Action:  models.ActionLoad,
		Role:    models.RoleSystem,
		Creator: creator,
	}
	return store.Transaction(ctx, cmd, func(tx *storage.AuditedTx) error {
		for _, candidate := range s.publications {
			if err := s.persistOne(tx, candidate); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) persistOne(tx *storage.AuditedTx, candidate *reconcile.Publication) error {
	var containerID *uint
	if name := candidate.Container.Value(); name != "" {
		container, err := findOrCreateContainer(tx, name, candidate.Type.Value())
		if err != nil {
			return err
		}
		containerID = &container.ID
	}

	pub := &models.Publication{
		Title:       candidate.Title.Value(),
		Abstract:    candidate.Abstract.Value(),
		DOI:         candidate.DOI.Value(),
		IsPrimary:   candidate.IsPrimary,
		Status:      models.StatusUntagged,
		ContainerID: containerID,
	}
	if candidate.Year.HasValue() {
		pub.DatePublishedText = strconv.Itoa(candidate.Year.Value())
	}
	if err := tx.LogCreate(pub); err != nil {
		return err
	}

	raw, err := rawFromCandidate(candidate, pub.ID, containerID)
	if err != nil {
		return err
	}
	if err := tx.LogCreate(raw); err != nil {
		return err
	}

	for _, ca := range candidate.Authors {
		author, err := findOrCreateAuthor(tx, ca)
		if err != nil {
			return err
		}
		link := &models.PublicationAuthors{PublicationID: pub.ID, AuthorID: author.ID}
		if err := tx.LogCreate(link); err != nil {
			return err
		}
		rawLink := &models.RawAuthors{RawID: raw.ID, AuthorID: author.ID}
		if err := tx.LogCreate(rawLink); err != nil {
			return err
		}
	}
	return nil
}

func findOrCreateContainer(tx *storage.AuditedTx, name, containerType string) (*models.Container, error) {
	var container models.Container
	err := tx.DB().Where("name = ?", name).First(&container).Error
	if err == nil {
		return &container, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	container = models.Container{Name: name, Type: containerType}
	if err := tx.LogCreate(&container); err != nil {
		return nil, err
	}
	return &container, nil
}

func findOrCreateAuthor(tx *storage.AuditedTx, ca *reconcile.Author) (*models.Author, error) {
	family := ca.Family.Value()
	given := ca.Given.Value()
	var author models.Author
	err := tx.DB().Where("family_name = ? AND given_name = ?", family, given).First(&author).Error
	if err == nil {
		return &author, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	author = models.Author{
		Type:       models.AuthorIndividual,
		FamilyName: family,
		GivenName:  given,
	}
	if err := tx.LogCreate(&author); err != nil {
		return nil, err
	}
	return &author, nil
}

// rawFromCandidate friert die Beobachtungshistorie eines Kandidaten als
// Raw-Zeile ein.
func rawFromCandidate(candidate *reconcile.Publication, publicationID uint, containerID *uint) (*models.Raw, error) {
	history := map[string]any{
		"sources":   candidate.History(),
		"title":     candidate.Title.History(),
		"doi":       candidate.DOI.History(),
		"container": candidate.Container.History(),
		"abstract":  candidate.Abstract.History(),
		"year":      candidate.Year.History(),
	}
	value, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("serialize candidate history: %w", err)
	}
	key := models.RawBibtexEntry
	if len(candidate.History()) > 0 {
		key = string(candidate.History()[0])
	}
	return &models.Raw{
		Key:           key,
		Value:         value,
		PublicationID: publicationID,
		ContainerID:   containerID,
	}, nil
}
