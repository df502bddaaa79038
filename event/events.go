package event

import (
	"casework/idgen"
	"casework/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	EventPersistCreateFunc = eventPersistCreate

	idWorker = idgen.NewWorker()
)

func CreateEvent(sourceType string, sourceId types.ID, sourceDesc string, category EventCategory,
	updatedProperties []UpdatedProperty, identity *session.Identity, timestamp time.Time, db *gorm.DB) (*EventRecord, error) {

	record := EventRecord{
		ID: idgen.NextID(idWorker),
		Event: Event{
			SourceType: sourceType,
			SourceId:   sourceId,
			SourceDesc: sourceDesc,

			EventCategory:     category,
			UpdatedProperties: updatedProperties,

			CreatorId:   identity.ID,
			CreatorName: identity.Name,
		},
		Timestamp: timestamp,
	}
	if err := EventPersistCreateFunc(&record, db); err != nil {
		return nil, err
	}
	return &record, nil
}

func eventPersistCreate(record *EventRecord, db *gorm.DB) error {
	return db.Create(record).Error
}

// ListEvents returns the events of one source ordered by time.
func ListEvents(sourceType string, sourceId types.ID, db *gorm.DB) ([]EventRecord, error) {
	var records []EventRecord
	if err := db.Where(&EventRecord{Event: Event{SourceType: sourceType, SourceId: sourceId}}).
		Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	if records == nil {
		records = []EventRecord{}
	}
	return records, nil
}
