package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"catalog-hand/models"
)

// Loggable muss jedes Modell implementieren, das über den Store mutiert
// wird. TableName kommt von GORM, GetID/LogLabel von den Modellen selbst.
type Loggable interface {
	GetID() uint
	LogLabel() string
	TableName() string
}

// Store kapselt die Datenbank und erzwingt, dass jede Mutation der
// Merge-Schicht unter einem AuditCommand und in einer Transaktion läuft.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New erstellt einen Store.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB gibt die rohe Datenbank für reine Lesezugriffe zurück.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction ist die explizite Unit of Work: legt das AuditCommand an
// (falls noch nicht persistiert), öffnet genau eine Transaktion und
// reicht eine daran gebundene AuditedTx in fn. Commit nur, wenn fn ohne
// Fehler zurückkehrt; sonst vollständiger Rollback inklusive aller
// Audit-Zeilen.
func (s *Store) Transaction(ctx context.Context, cmd *models.AuditCommand, fn func(tx *AuditedTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cmd.ID == 0 {
			if err := tx.Create(cmd).Error; err != nil {
				return fmt.Errorf("create audit command: %w", err)
			}
		}
		return fn(&AuditedTx{tx: tx, cmd: cmd, logger: s.logger})
	})
}

// AuditedTx ist eine laufende Transaktion, gebunden an genau ein
// AuditCommand. Jede Mutation schreibt zusätzlich eine AuditLog-Zeile.
type AuditedTx struct {
	tx     *gorm.DB
	cmd    *models.AuditCommand
	logger *zap.Logger
}

// DB gibt das Transaktions-Handle für Lesezugriffe innerhalb der
// Unit of Work zurück.
func (t *AuditedTx) DB() *gorm.DB {
	return t.tx
}

// Command gibt das gebundene AuditCommand zurück.
func (t *AuditedTx) Command() *models.AuditCommand {
	return t.cmd
}

// LogCreate legt den Datensatz an und schreibt eine INSERT-Zeile mit dem
// vollständigen neuen Zustand.
func (t *AuditedTx) LogCreate(v Loggable) error {
	if err := t.tx.Create(v).Error; err != nil {
		return fmt.Errorf("create %s: %w", v.TableName(), err)
	}
	payload, err := makePayload(v)
	if err != nil {
		return err
	}
	return t.appendLog(models.LogInsert, v, payload)
}

// LogUpdate wendet die Änderungen an und schreibt eine UPDATE-Zeile mit
// old/new-Paaren. Änderungen, die den aktuellen Werten entsprechen,
// erzeugen weder Schreibzugriff noch Log-Zeile.
func (t *AuditedTx) LogUpdate(v Loggable, changes map[string]any) error {
	payload, effective, err := makeVersionedPayload(v, changes)
	if err != nil {
		return err
	}
	if len(effective) == 0 {
		return nil
	}
	if err := t.tx.Model(v).Updates(effective).Error; err != nil {
		return fmt.Errorf("update %s %d: %w", v.TableName(), v.GetID(), err)
	}
	return t.appendLog(models.LogUpdate, v, payload)
}

// LogDelete schreibt zuerst eine DELETE-Zeile mit dem letzten Zustand
// (für ein späteres Replay) und löscht dann den Datensatz.
func (t *AuditedTx) LogDelete(v Loggable) error {
	payload, err := makePayload(v)
	if err != nil {
		return err
	}
	if err := t.appendLog(models.LogDelete, v, payload); err != nil {
		return err
	}
	if err := t.tx.Delete(v).Error; err != nil {
		return fmt.Errorf("delete %s %d: %w", v.TableName(), v.GetID(), err)
	}
	return nil
}

func (t *AuditedTx) appendLog(action string, v Loggable, payload []byte) error {
	entry := models.AuditLog{
		Action:         action,
		Table:          v.TableName(),
		RowID:          v.GetID(),
		Payload:        payload,
		Message:        v.LogLabel(),
		AuditCommandID: t.cmd.ID,
	}
	if err := t.tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// makePayload baut den Payload für INSERT/DELETE: kompletter Zustand
// plus ein Label, damit der Ledger auch ohne Joins lesbar bleibt.
func makePayload(v Loggable) ([]byte, error) {
	data, err := toMap(v)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"data":   data,
		"labels": map[string]string{v.TableName(): v.LogLabel()},
	}
	return json.Marshal(payload)
}

// makeVersionedPayload baut den Payload für UPDATE und filtert Felder
// heraus, deren neuer Wert dem alten entspricht. Gibt zusätzlich die
// tatsächlich wirksamen Änderungen zurück.
func makeVersionedPayload(v Loggable, changes map[string]any) ([]byte, map[string]any, error) {
	current, err := toMap(v)
	if err != nil {
		return nil, nil, err
	}
	diff := map[string]any{}
	effective := map[string]any{}
	for column, newValue := range changes {
		oldRaw, _ := json.Marshal(current[column])
		newRaw, _ := json.Marshal(newValue)
		if string(oldRaw) == string(newRaw) {
			continue
		}
		diff[column] = map[string]any{
			"old": json.RawMessage(oldRaw),
			"new": json.RawMessage(newRaw),
		}
		effective[column] = newValue
	}
	if len(effective) == 0 {
		return nil, nil, nil
	}
	payload := map[string]any{
		"data":   diff,
		"labels": map[string]string{v.TableName(): v.LogLabel()},
	}
	raw, err := json.Marshal(payload)
	return raw, effective, err
}

// toMap serialisiert ein Modell über seine json-Tags in eine Map; die
// Tags entsprechen den Spaltennamen.
func toMap(v Loggable) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", v.TableName(), err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
