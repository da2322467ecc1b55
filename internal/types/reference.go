package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Krithi struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	NormalizedTitle string         `gorm:"column:normalized_title;not null;index" json:"normalized_title"`
	ComposerID      *uuid.UUID     `gorm:"type:uuid;column:composer_id;index" json:"composer_id,omitempty"`
	RagaID          *uuid.UUID     `gorm:"type:uuid;column:raga_id;index" json:"raga_id,omitempty"`
	TalaID          *uuid.UUID     `gorm:"type:uuid;column:tala_id;index" json:"tala_id,omitempty"`
	Deity           string         `gorm:"column:deity" json:"deity,omitempty"`
	Temple          string         `gorm:"column:temple" json:"temple,omitempty"`
	Language        string         `gorm:"column:language" json:"language,omitempty"`
	Structure       datatypes.JSON `gorm:"type:jsonb;column:structure" json:"structure,omitempty"`
	Lyrics          string         `gorm:"column:lyrics;type:text" json:"lyrics,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Krithi) TableName() string { return "krithi" }

type Composer struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	NormalizedName string    `gorm:"column:normalized_name;not null;uniqueIndex" json:"normalized_name"`
	Period         string    `gorm:"column:period" json:"period,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Composer) TableName() string { return "composer" }

type Raga struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	NormalizedName string    `gorm:"column:normalized_name;not null;uniqueIndex" json:"normalized_name"`
	Melakarta      *int      `gorm:"column:melakarta" json:"melakarta,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Raga) TableName() string { return "raga" }

type Tala struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	NormalizedName string    `gorm:"column:normalized_name;not null;uniqueIndex" json:"normalized_name"`
	AksharaCount   *int      `gorm:"column:akshara_count" json:"akshara_count,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Tala) TableName() string { return "tala" }

// EntityAlias maps a known alternate spelling to its canonical reference row.
type EntityAlias struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType      EntityType `gorm:"column:entity_type;not null;index:idx_alias_type_norm,unique" json:"entity_type"`
	Alias           string     `gorm:"column:alias;not null" json:"alias"`
	NormalizedAlias string     `gorm:"column:normalized_alias;not null;index:idx_alias_type_norm,unique" json:"normalized_alias"`
	CanonicalID     uuid.UUID  `gorm:"type:uuid;column:canonical_id;not null;index" json:"canonical_id"`
	CreatedAt       time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (EntityAlias) TableName() string { return "entity_alias" }

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Password  string    `gorm:"column:password;not null" json:"-"`
	FirstName string    `gorm:"column:first_name" json:"first_name,omitempty"`
	LastName  string    `gorm:"column:last_name" json:"last_name,omitempty"`
	Role      string    `gorm:"column:role;not null;default:'reviewer'" json:"role"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "app_user" }
