package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/spigell/hh-market/internal/market"
)

// Memory is an in-process Store. Transactions are serialized by a mutex and
// rolled back by restoring a snapshot taken when they started.
type Memory struct {
	mu   sync.Mutex
	data memoryData
}

type memoryData struct {
	seq          uint
	users        map[uint]market.User
	resumes      map[uint]market.Resume
	jobs         map[uint]market.Job
	valuations   map[uint]market.Valuation // keyed by resume id
	recruits     map[uint]market.RecruitResume
	draws        map[uint]market.DrawHistory
	packages     map[uint]market.PointPackage
	transactions map[uint]market.TransactionHistory
}

func NewMemory() *Memory {
	return &Memory{data: memoryData{
		users:        map[uint]market.User{},
		resumes:      map[uint]market.Resume{},
		jobs:         map[uint]market.Job{},
		valuations:   map[uint]market.Valuation{},
		recruits:     map[uint]market.RecruitResume{},
		draws:        map[uint]market.DrawHistory{},
		packages:     map[uint]market.PointPackage{},
		transactions: map[uint]market.TransactionHistory{},
	}}
}

func (m *Memory) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	defer func() {
		if r := recover(); r != nil {
			m.data = snapshot
			panic(r)
		}
	}()

	if err := fn(&memoryTx{data: &m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d memoryData) clone() memoryData {
	return memoryData{
		seq:          d.seq,
		users:        cloneMap(d.users),
		resumes:      cloneMap(d.resumes),
		jobs:         cloneMap(d.jobs),
		valuations:   cloneMap(d.valuations),
		recruits:     cloneMap(d.recruits),
		draws:        cloneMap(d.draws),
		packages:     cloneMap(d.packages),
		transactions: cloneMap(d.transactions),
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type memoryTx struct {
	data *memoryData
}

func (t *memoryTx) nextID() uint {
	t.data.seq++
	return t.data.seq
}

func (t *memoryTx) User(id uint) (*market.User, error) {
	u, ok := t.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memoryTx) CreateUser(u *market.User) error {
	u.ID = t.nextID()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	t.data.users[u.ID] = *u
	return nil
}

func (t *memoryTx) SaveUserPoints(u *market.User) error {
	stored, ok := t.data.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Point = u.Point
	stored.WarrantyPoint = u.WarrantyPoint
	stored.UpdatedAt = time.Now()
	t.data.users[u.ID] = stored
	return nil
}

func (t *memoryTx) Resume(id uint) (*market.Resume, error) {
	r, ok := t.data.resumes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memoryTx) CreateResume(r *market.Resume) error {
	r.ID = t.nextID()
	if r.Status == "" {
		r.Status = market.ResumePending
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	t.data.resumes[r.ID] = *r
	return nil
}

func (t *memoryTx) SetResumeStatus(id uint, status market.ResumeStatus) error {
	r, ok := t.data.resumes[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	t.data.resumes[id] = r
	return nil
}

func (t *memoryTx) Job(id uint) (*market.Job, error) {
	j, ok := t.data.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (t *memoryTx) CreateJob(j *market.Job) error {
	j.ID = t.nextID()
	j.CreatedAt = time.Now()
	t.data.jobs[j.ID] = *j
	return nil
}

func (t *memoryTx) Valuation(resumeID uint) (*market.Valuation, error) {
	v, ok := t.data.valuations[resumeID]
	if !ok {
		return nil, ErrNotFound
	}
	v.Degrees = slices.Clone(v.Degrees)
	v.Certificates = slices.Clone(v.Certificates)
	return &v, nil
}

func (t *memoryTx) SaveValuation(v *market.Valuation) error {
	now := time.Now()
	if existing, ok := t.data.valuations[v.ResumeID]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	} else {
		v.ID = t.nextID()
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	stored := *v
	stored.Degrees = slices.Clone(v.Degrees)
	stored.Certificates = slices.Clone(v.Certificates)
	t.data.valuations[v.ResumeID] = stored
	return nil
}

func (t *memoryTx) RecruitResume(id uint) (*market.RecruitResume, error) {
	r, ok := t.data.recruits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memoryTx) CreateRecruitResume(r *market.RecruitResume) error {
	r.ID = t.nextID()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	t.data.recruits[r.ID] = *r
	return nil
}

func (t *memoryTx) SaveRecruitResume(r *market.RecruitResume) error {
	if _, ok := t.data.recruits[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now()
	t.data.recruits[r.ID] = *r
	return nil
}

func (t *memoryTx) PendingWarranties(day time.Time) ([]uint, error) {
	day = Day(day)
	ids := make([]uint, 0)
	for id, r := range t.data.recruits {
		if r.WarrantyState != market.WarrantyActive {
			continue
		}
		if r.LastWarrantyTick != nil && !r.LastWarrantyTick.Before(day) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *memoryTx) CreateDraw(d *market.DrawHistory) error {
	d.ID = t.nextID()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	t.data.draws[d.ID] = *d
	return nil
}

func (t *memoryTx) Draws(collaboratorID uint) ([]market.DrawHistory, error) {
	draws := make([]market.DrawHistory, 0)
	for _, d := range t.data.draws {
		if d.CollaboratorID == collaboratorID {
			draws = append(draws, d)
		}
	}
	sort.Slice(draws, func(i, j int) bool { return draws[i].ID < draws[j].ID })
	return draws, nil
}

func (t *memoryTx) PointPackage(id uint) (*market.PointPackage, error) {
	p, ok := t.data.packages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memoryTx) CreatePointPackage(p *market.PointPackage) error {
	p.ID = t.nextID()
	t.data.packages[p.ID] = *p
	return nil
}

func (t *memoryTx) TransactionByReference(ref string) (*market.TransactionHistory, error) {
	for _, th := range t.data.transactions {
		if th.PaymentReference == ref {
			return &th, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) CreateTransaction(th *market.TransactionHistory) error {
	for _, existing := range t.data.transactions {
		if existing.PaymentReference == th.PaymentReference {
			return ErrDuplicate
		}
	}
	th.ID = t.nextID()
	th.CreatedAt = time.Now()
	t.data.transactions[th.ID] = *th
	return nil
}

func (t *memoryTx) Transactions(userID uint) ([]market.TransactionHistory, error) {
	history := make([]market.TransactionHistory, 0)
	for _, th := range t.data.transactions {
		if th.UserID == userID {
			history = append(history, th)
		}
	}
	sort.Slice(history, func(i, j int) bool { return history[i].ID < history[j].ID })
	return history, nil
}
