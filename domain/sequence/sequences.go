package sequence

import (
	"casework/bizerror"
	"casework/idgen"
	"casework/persistence"
	"casework/session"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
	"golang.org/x/time/rate"
)

const defaultIssueAttempts = 5

// Manager issues gap-free numbers per (prefix, year) and records issued case numbers.
type Manager struct {
	ds      *persistence.DataSourceManager
	catalog *PrefixCatalog

	idWorker *sonyflake.Sonyflake
	limiter  *rate.Limiter
	attempts int
	now      func() time.Time
}

type Option func(m *Manager)

func WithRetry(limiter *rate.Limiter, attempts int) Option {
	return func(m *Manager) {
		m.limiter = limiter
		m.attempts = attempts
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(ds *persistence.DataSourceManager, catalog *PrefixCatalog, opts ...Option) *Manager {
	m := &Manager{
		ds:       ds,
		catalog:  catalog,
		idWorker: idgen.NewWorker(),
		limiter:  rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
		attempts: defaultIssueAttempts,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Catalog() *PrefixCatalog {
	return m.catalog
}

func (m *Manager) CurrentYear() int {
	return m.now().Year()
}

// IssueNext increments the (prefix, year) counter in its own transaction and returns the new value.
func (m *Manager) IssueNext(ctx context.Context, prefix string, year int) (int64, error) {
	var number int64
	err := m.ds.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = m.IssueNextTx(tx, prefix, year)
		return err
	})
	if err != nil {
		return 0, classify(err)
	}
	return number, nil
}

// IssueNextWithRetry retries IssueNext on lock contention, paced by the manager's limiter.
func (m *Manager) IssueNextWithRetry(ctx context.Context, prefix string, year int) (int64, error) {
	var number int64
	err := m.retry(ctx, func() error {
		var err error
		number, err = m.IssueNext(ctx, prefix, year)
		return err
	})
	return number, err
}

// IssueNextTx locks the counter row inside tx and increments it. The row is created lazily, a
// concurrent creation surfaces as a ConcurrencyError. Rolling tx back restores the counter.
func (m *Manager) IssueNextTx(tx *gorm.DB, prefix string, year int) (int64, error) {
	if err := m.checkKey(prefix, year); err != nil {
		return 0, err
	}

	seq := Sequence{}
	err := persistence.ForUpdate(tx).Where("prefix = ? AND year = ?", prefix, year).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = Sequence{Prefix: prefix, Year: year, LastNumber: 0, UpdateTime: m.now()}
		if err := tx.Create(&seq).Error; err != nil {
			return 0, classify(err)
		}
	} else if err != nil {
		return 0, classify(err)
	}

	next := seq.LastNumber + 1
	db := tx.Model(&Sequence{}).Where("prefix = ? AND year = ? AND last_number = ?", prefix, year, seq.LastNumber).
		Updates(map[string]interface{}{"last_number": next, "update_time": m.now()})
	if db.Error != nil {
		return 0, classify(db.Error)
	}
	if db.RowsAffected != 1 {
		return 0, &bizerror.ConcurrencyError{Cause: fmt.Errorf("sequence %s/%d changed concurrently", prefix, year)}
	}
	return next, nil
}

// PreviewNext returns the number the next issuance would yield. It never writes.
func (m *Manager) PreviewNext(ctx context.Context, prefix string, year int) (*Preview, error) {
	if err := m.checkKey(prefix, year); err != nil {
		return nil, err
	}
	number, err := m.PreviewNextTx(m.ds.GormDB(ctx), prefix, year)
	if err != nil {
		return nil, err
	}
	return &Preview{Prefix: prefix, Year: year, Number: number, Value: Format(prefix, year, number)}, nil
}

func (m *Manager) PreviewNextTx(db *gorm.DB, prefix string, year int) (int64, error) {
	seq := Sequence{}
	err := db.Where("prefix = ? AND year = ?", prefix, year).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 1, nil
	} else if err != nil {
		return 0, err
	}
	return seq.LastNumber + 1, nil
}

// IssueCaseNumber issues the next number for the request and stores the rendered case number.
func (m *Manager) IssueCaseNumber(ctx context.Context, req CaseNumberCreation, s *session.Session) (*CaseNumber, error) {
	year := req.Year
	if year == 0 {
		year = m.CurrentYear()
	}
	var r *CaseNumber
	err := m.retry(ctx, func() error {
		return classify(m.ds.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			r, err = m.IssueCaseNumberTx(tx, req.Prefix, year, req.Description, &s.Identity)
			return err
		}))
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"caseNumber": r.Value, "creator": s.Identity.Name}).Info("case number issued")
	return r, nil
}

// IssueCaseNumberTx issues and records a case number inside the caller's transaction.
func (m *Manager) IssueCaseNumberTx(tx *gorm.DB, prefix string, year int, description string,
	identity *session.Identity) (*CaseNumber, error) {

	number, err := m.IssueNextTx(tx, prefix, year)
	if err != nil {
		return nil, err
	}
	category, _ := m.catalog.Lookup(prefix)
	cn := CaseNumber{
		ID:          idgen.NextID(m.idWorker),
		Prefix:      prefix,
		Year:        year,
		Number:      number,
		Value:       Format(prefix, year, number),
		Category:    category,
		Description: description,
		CreatorId:   identity.ID,
		CreatorName: identity.Name,
		CreateTime:  m.now(),
	}
	if err := tx.Create(&cn).Error; err != nil {
		if persistence.IsDuplicateKeyError(err) {
			// the counter row was locked, so a duplicate value means the stored numbers are corrupt
			logrus.WithField("caseNumber", cn.Value).Error("case number already exists")
			return nil, &bizerror.IntegrityError{Cause: fmt.Errorf("case number %s already exists", cn.Value)}
		}
		return nil, classify(err)
	}
	return &cn, nil
}

// Statistics reports per prefix of the catalog the counters of year.
func (m *Manager) Statistics(ctx context.Context, year int) ([]PrefixStatistics, error) {
	if year == 0 {
		year = m.CurrentYear()
	}
	db := m.ds.GormDB(ctx)

	var sequences []Sequence
	if err := db.Where("year = ?", year).Find(&sequences).Error; err != nil {
		return nil, err
	}
	lastNumbers := map[string]int64{}
	for _, s := range sequences {
		lastNumbers[s.Prefix] = s.LastNumber
	}

	type issuedCount struct {
		Prefix string
		Total  int64
	}
	var counts []issuedCount
	if err := db.Model(&CaseNumber{}).Select("prefix, count(*) as total").Where("year = ?", year).
		Group("prefix").Scan(&counts).Error; err != nil {
		return nil, err
	}
	issued := map[string]int64{}
	for _, c := range counts {
		issued[c.Prefix] = c.Total
	}

	r := []PrefixStatistics{}
	for _, prefix := range m.catalog.Prefixes() {
		category, _ := m.catalog.Lookup(prefix)
		last := lastNumbers[prefix]
		r = append(r, PrefixStatistics{Prefix: prefix, Category: category, Year: year,
			Issued: issued[prefix], LastNumber: last, Next: Format(prefix, year, last+1)})
	}
	return r, nil
}

// SearchCaseNumbers matches term against rendered values and descriptions, newest first.
func (m *Manager) SearchCaseNumbers(ctx context.Context, term string) ([]CaseNumber, error) {
	var r []CaseNumber
	q := m.ds.GormDB(ctx).Model(&CaseNumber{})
	if term = strings.TrimSpace(term); term != "" {
		like := "%" + term + "%"
		q = q.Where("value LIKE ? OR description LIKE ?", like, like)
	}
	if err := q.Order("year DESC, prefix ASC, number DESC").Limit(200).Find(&r).Error; err != nil {
		return nil, err
	}
	if r == nil {
		r = []CaseNumber{}
	}
	return r, nil
}

func (m *Manager) checkKey(prefix string, year int) error {
	if _, found := m.catalog.Lookup(prefix); !found {
		return &bizerror.ErrBadParam{Cause: fmt.Errorf("unknown case number prefix '%s'", prefix)}
	}
	if year < 1 || year > 9999 {
		return &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid case number year %d", year)}
	}
	return nil
}

func (m *Manager) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, bizerror.ErrConcurrency) {
			return err
		}
		logrus.WithField("attempt", attempt).Warn(err)
		if attempt < m.attempts {
			if waitErr := m.limiter.Wait(ctx); waitErr != nil {
				return err
			}
		}
	}
	return err
}

// classify turns driver level contention into a ConcurrencyError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var concurrencyErr *bizerror.ConcurrencyError
	if errors.As(err, &concurrencyErr) {
		return err
	}
	if persistence.IsDuplicateKeyError(err) || persistence.IsLockContentionError(err) {
		return &bizerror.ConcurrencyError{Cause: err}
	}
	return err
}
