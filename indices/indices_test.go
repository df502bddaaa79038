package indices_test

import (
	"casework/bizerror"
	"casework/client/es"
	"casework/domain/process"
	"casework/event"
	"casework/indices"
	"casework/session"
	"casework/testinfra"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

type fakeLoader struct {
	pages   [][]process.InstanceDetail
	details map[types.ID]*process.InstanceDetail
	gate    chan struct{}
}

func (f *fakeLoader) DetailInstance(instanceID types.ID, s *session.Session) (*process.InstanceDetail, error) {
	d, found := f.details[instanceID]
	if !found {
		return nil, bizerror.NewNotFoundError("instance", instanceID)
	}
	return d, nil
}

func (f *fakeLoader) LoadInstancesPage(page, pageSize int, s *session.Session) ([]process.InstanceDetail, error) {
	if f.gate != nil {
		<-f.gate
	}
	if page > len(f.pages) {
		return []process.InstanceDetail{}, nil
	}
	return f.pages[page-1], nil
}

type indexCapture struct {
	lock sync.Mutex
	docs map[types.ID]interface{}
}

func captureIndex(t *testing.T) *indexCapture {
	c := &indexCapture{docs: map[types.ID]interface{}{}}
	origin := es.IndexFunc
	t.Cleanup(func() { es.IndexFunc = origin })
	es.IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
		Expect(index).To(Equal(indices.InstanceIndexName))
		c.lock.Lock()
		defer c.lock.Unlock()
		if id == 666 {
			return errors.New("mapping conflict")
		}
		c.docs[id] = doc
		return nil
	}
	return c
}

func instance(id types.ID, statuses ...string) process.InstanceDetail {
	d := process.InstanceDetail{WorkflowInstance: process.WorkflowInstance{ID: id, Name: "instance", Status: "active"},
		Steps: []process.StepInstance{}}
	for i, st := range statuses {
		d.Steps = append(d.Steps, process.StepInstance{ID: id*10 + types.ID(i), InstanceID: id, OrderIndex: i + 1, Status: st})
	}
	return d
}

func TestIndexInstances(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should index documents with progress", func(t *testing.T) {
		c := captureIndex(t)
		Expect(indices.IndexInstances(context.Background(), []process.InstanceDetail{
			instance(100, "completed", "skipped", "in_progress", "pending"), instance(101)})).To(Succeed())

		Expect(c.docs[100].(indices.InstanceDocument).Progress).To(Equal(float64(50)))
		Expect(c.docs[101].(indices.InstanceDocument).Progress).To(BeZero())
	})

	t.Run("should collect failures per instance", func(t *testing.T) {
		c := captureIndex(t)
		err := indices.IndexInstances(context.Background(), []process.InstanceDetail{instance(666), instance(100)})
		var batchErr indices.BatchActionError
		Expect(errors.As(err, &batchErr)).To(BeTrue())
		Expect(len(batchErr)).To(Equal(1))
		Expect(batchErr[666]).To(MatchError("mapping conflict"))
		Expect(c.docs).To(HaveKey(types.ID(100)))
	})
}

func TestSynchronizer(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should ignore events of other sources", func(t *testing.T) {
		x := indices.NewSynchronizer(&fakeLoader{})
		Expect(x.HandleEvent(&event.EventRecord{Event: event.Event{SourceType: event.SourceTypeTemplate}})).To(BeNil())
	})

	t.Run("should reindex instance of event", func(t *testing.T) {
		c := captureIndex(t)
		d := instance(100, "in_progress")
		x := indices.NewSynchronizer(&fakeLoader{details: map[types.ID]*process.InstanceDetail{100: &d}})

		r := x.HandleEvent(&event.EventRecord{Event: event.Event{SourceType: event.SourceTypeInstance, SourceId: 100}})
		Expect(*r).To(Equal(event.EventHandleResult{Success: true, HandlerIdentifier: indices.InstanceIndexEventHandlerName}))
		Expect(c.docs).To(HaveKey(types.ID(100)))

		r = x.HandleEvent(&event.EventRecord{Event: event.Event{SourceType: event.SourceTypeInstance, SourceId: 200}})
		Expect(*r).To(Equal(event.EventHandleResult{HandlerIdentifier: indices.InstanceIndexEventHandlerName,
			Message: "detail instance when index instance 200, instance 200 not found"}))
	})

	t.Run("should report index failures of event", func(t *testing.T) {
		captureIndex(t)
		d := instance(666)
		x := indices.NewSynchronizer(&fakeLoader{details: map[types.ID]*process.InstanceDetail{666: &d}})
		r := x.HandleEvent(&event.EventRecord{Event: event.Event{SourceType: event.SourceTypeInstance, SourceId: 666}})
		Expect(r.Success).To(BeFalse())
		Expect(r.Message).To(HavePrefix("index instance 666, "))
	})

	t.Run("should walk all pages on full sync", func(t *testing.T) {
		c := captureIndex(t)
		x := indices.NewSynchronizer(&fakeLoader{pages: [][]process.InstanceDetail{
			{instance(100), instance(101)}, {instance(666), instance(102)}}})
		Expect(x.FullSync()).To(Succeed())
		Expect(len(c.docs)).To(Equal(3))
	})

	t.Run("should allow one scheduled run at a time", func(t *testing.T) {
		c := captureIndex(t)
		gate := make(chan struct{})
		x := indices.NewSynchronizer(&fakeLoader{pages: [][]process.InstanceDetail{{instance(100)}}, gate: gate})

		success, err := x.ScheduleNewSyncRun(testinfra.BuildSession(2, session.RoleClerk))
		Expect(err).To(Equal(bizerror.ErrForbidden))
		Expect(success).To(BeFalse())

		admin := testinfra.BuildSession(1, session.RoleAdmin)
		success, err = x.ScheduleNewSyncRun(admin)
		Expect(err).To(BeNil())
		Expect(success).To(BeTrue())

		success, err = x.ScheduleNewSyncRun(admin)
		Expect(err).To(BeNil())
		Expect(success).To(BeFalse())

		close(gate)
		Eventually(func() int {
			c.lock.Lock()
			defer c.lock.Unlock()
			return len(c.docs)
		}, time.Second).Should(Equal(1))
	})
}

func TestStartCron(t *testing.T) {
	RegisterTestingT(t)

	x := indices.NewSynchronizer(&fakeLoader{})

	t.Setenv("INDEX_SYNC_CRON", "not a schedule")
	c, err := x.StartCron()
	Expect(err).ToNot(BeNil())
	Expect(c).To(BeNil())

	t.Setenv("INDEX_SYNC_CRON", "")
	c, err = x.StartCron()
	Expect(err).To(BeNil())
	Expect(len(c.Entries())).To(Equal(1))
	c.Stop()
}
