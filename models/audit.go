package models

import (
	"time"
)

// Aktionen eines AuditCommand (die fachliche Operation als Ganzes).
const (
	ActionMerge  = "MERGE"
	ActionSplit  = "SPLIT"
	ActionLoad   = "LOAD"
	ActionManual = "MANUAL"
)

// Rollen, unter denen eine Aktion ausgeführt wurde.
const (
	RoleCuratorEdit = "CURATOR_EDIT"
	RoleSystem      = "SYSTEM"
)

// Aktionen einzelner AuditLog-Zeilen (die Zeilen-Mutation).
const (
	LogInsert = "INSERT"
	LogUpdate = "UPDATE"
	LogDelete = "DELETE"
)

// AuditCommand gruppiert alle Mutationen einer fachlichen Operation.
// Ein Merge über Autoren + Container + Publikationen läuft unter genau
// einem Command; die Merge-Schicht legt nie selbst eines an, der Aufrufer
// reicht es herein.
type AuditCommand struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Action  string `json:"action" gorm:"index"`
	Role    string `json:"role"`
	Creator string `json:"creator" gorm:"index"`
	Message string `json:"message,omitempty" gorm:"type:text"`
}

func (AuditCommand) TableName() string { return "audit_commands" }

// AuditLog ist eine Zeile des append-only Mutations-Ledgers. Payload
// enthält bei INSERT/DELETE den vollständigen Zustand, bei UPDATE die
// old/new-Paare der geänderten Felder. Zeilen werden nie verändert oder
// gelöscht, damit ein forensisches Replay möglich bleibt.
type AuditLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Action  string `json:"action" gorm:"index"`
	Table   string `json:"table" gorm:"column:table_name;index:idx_audit_row"`
	RowID   uint   `json:"row_id" gorm:"index:idx_audit_row"`
	Payload []byte `json:"payload,omitempty" gorm:"type:jsonb"`
	Message string `json:"message,omitempty"`

	AuditCommandID uint `json:"audit_command_id" gorm:"index"`
}

func (AuditLog) TableName() string { return "audit_logs" }
