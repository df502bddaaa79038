package sequence

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// Sequence holds the last issued number of one (prefix, year) counter.
type Sequence struct {
	Prefix     string    `json:"prefix" gorm:"primary_key" sql:"type:VARCHAR(16) NOT NULL"`
	Year       int       `json:"year" gorm:"primary_key;auto_increment:false" sql:"type:INT NOT NULL"`
	LastNumber int64     `json:"lastNumber" sql:"type:BIGINT NOT NULL"`
	UpdateTime time.Time `json:"updateTime"`
}

func (s *Sequence) TableName() string {
	return "sequences"
}

// CaseNumber is the immutable record of one issued number.
type CaseNumber struct {
	ID          types.ID `json:"id" gorm:"primary_key"`
	Prefix      string   `json:"prefix" sql:"type:VARCHAR(16) NOT NULL"`
	Year        int      `json:"year"`
	Number      int64    `json:"number"`
	Value       string   `json:"value" gorm:"unique_index:uk_case_numbers_value" sql:"type:VARCHAR(64) NOT NULL"`
	Category    Category `json:"category" sql:"type:VARCHAR(32)"`
	Description string   `json:"description"`

	CreatorId   types.ID  `json:"creatorId"`
	CreatorName string    `json:"creatorName"`
	CreateTime  time.Time `json:"createTime"`
}

func (c *CaseNumber) TableName() string {
	return "case_numbers"
}

type CaseNumberCreation struct {
	Prefix      string `json:"prefix" binding:"required"`
	Year        int    `json:"year" binding:"omitempty,min=1,max=9999"`
	Description string `json:"description" binding:"max=255"`
}

type Preview struct {
	Prefix string `json:"prefix"`
	Year   int    `json:"year"`
	Number int64  `json:"number"`
	Value  string `json:"value"`
}

type PrefixStatistics struct {
	Prefix     string   `json:"prefix"`
	Category   Category `json:"category"`
	Year       int      `json:"year"`
	Issued     int64    `json:"issued"`
	LastNumber int64    `json:"lastNumber"`
	Next       string   `json:"next"`
}
