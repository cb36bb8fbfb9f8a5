package models

import (
	"fmt"
	"time"
)

// Container ist das kanonische Publikationsorgan (Journal, Konferenz, ...).
type Container struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name"`
	ISSN string `json:"issn,omitempty" gorm:"index"`
	Type string `json:"type,omitempty"`
}

func (c *Container) GetID() uint { return c.ID }

func (c *Container) LogLabel() string {
	return fmt.Sprintf("name: %q issn: %q", c.Name, c.ISSN)
}

func (Container) TableName() string { return "containers" }

// ContainerAlias hält alternative Namen eines Containers fest.
type ContainerAlias struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `json:"name" gorm:"uniqueIndex:idx_container_alias"`
	ContainerID uint   `json:"container_id" gorm:"uniqueIndex:idx_container_alias;index"`
}

func (c *ContainerAlias) GetID() uint { return c.ID }

func (c *ContainerAlias) LogLabel() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.ID)
}

func (ContainerAlias) TableName() string { return "container_aliases" }
