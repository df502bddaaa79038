package indices

import (
	"casework/bizerror"
	"casework/domain/process"
	"casework/event"
	"casework/session"
	"fmt"
	"sync"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

const InstanceIndexEventHandlerName = "instanceIndexer"

var SyncBatchSize = 500

type InstanceLoader interface {
	DetailInstance(instanceID types.ID, s *session.Session) (*process.InstanceDetail, error)
	LoadInstancesPage(page, pageSize int, s *session.Session) ([]process.InstanceDetail, error)
}

// Synchronizer keeps the instance index in line with the database: per event, and by full runs.
type Synchronizer struct {
	loader InstanceLoader
	robot  *session.Session

	lock    sync.Mutex
	running bool

	fullSync func() error
}

func NewSynchronizer(loader InstanceLoader) *Synchronizer {
	s := &Synchronizer{loader: loader, robot: session.Background("index-robot")}
	s.fullSync = s.FullSync
	return s
}

// ScheduleNewSyncRun starts a full run in background. It returns false when a run is active.
func (x *Synchronizer) ScheduleNewSyncRun(s *session.Session) (bool, error) {
	if !s.IsAdmin() {
		return false, bizerror.ErrForbidden
	}

	if !x.acquire() {
		return false, nil
	}
	go func() {
		defer x.release()
		if err := x.fullSync(); err != nil {
			logrus.Errorf("indices fully sync: %v", err)
		}
	}()
	return true, nil
}

// runExclusive runs a full sync in the calling goroutine unless another run is active.
func (x *Synchronizer) runExclusive() (bool, error) {
	if !x.acquire() {
		return false, nil
	}
	defer x.release()
	return true, x.fullSync()
}

func (x *Synchronizer) acquire() bool {
	x.lock.Lock()
	defer x.lock.Unlock()
	if x.running {
		return false
	}
	x.running = true
	return true
}

func (x *Synchronizer) release() {
	x.lock.Lock()
	x.running = false
	x.lock.Unlock()
}

func (x *Synchronizer) FullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()

	for page := 1; ; page++ {
		instances, err := x.loader.LoadInstancesPage(page, SyncBatchSize, x.robot)
		if err != nil {
			return fmt.Errorf("load instances page %d: %w", page, err)
		}
		if len(instances) == 0 {
			logrus.Info("indices fully sync: there are no more instances to index")
			return nil
		}
		if err := IndexInstances(x.robot.Context, instances); err != nil {
			logrus.Warnf("indices fully sync: error on index instances(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
		}
	}
}

// HandleEvent reindexes the instance an event refers to.
func (x *Synchronizer) HandleEvent(e *event.EventRecord) *event.EventHandleResult {
	if e.SourceType != event.SourceTypeInstance {
		return nil
	}
	detail, err := x.loader.DetailInstance(e.SourceId, x.robot)
	if err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("detail instance when index instance %d, %v", e.SourceId, err),
			HandlerIdentifier: InstanceIndexEventHandlerName,
		}
	}
	if err := IndexInstances(x.robot.Context, []process.InstanceDetail{*detail}); err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("index instance %d, %v", e.SourceId, err),
			HandlerIdentifier: InstanceIndexEventHandlerName,
		}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: InstanceIndexEventHandlerName}
}
