package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"review-insights/internal/domain"
	"review-insights/internal/domain/specs"
	errs "review-insights/pkg/errors"
)

// MemStore is an in-memory domain.Repository and UnitOfWorkFactory for
// handler and analyzer tests. Transactions are not isolated; Commit and
// Rollback are no-ops.
type MemStore struct {
	Mu sync.Mutex

	Places        map[string]*domain.ExternalPlace
	Reviews       map[string]*domain.Review
	Analyses      map[string]domain.ReviewAnalysis
	Businesses    []domain.Business
	Subscriptions []domain.Subscription
	Competitors   []domain.Competitor
	Campaigns     map[string]*domain.Campaign // by short code
	Staff         []domain.StaffMember
	Mentions      map[string][]domain.StaffMentionDetail
	Inserted      []domain.CampaignReview

	// SaveErr, when set, is returned by SaveAnalysesCtx.
	SaveErr   error
	SaveCalls int
	Released  []string
}

func NewMemStore() *MemStore {
	return &MemStore{
		Places:    map[string]*domain.ExternalPlace{},
		Reviews:   map[string]*domain.Review{},
		Analyses:  map[string]domain.ReviewAnalysis{},
		Campaigns: map[string]*domain.Campaign{},
		Mentions:  map[string][]domain.StaffMentionDetail{},
	}
}

var (
	_ domain.Repository        = (*MemStore)(nil)
	_ domain.UnitOfWorkFactory = (*MemStore)(nil)
)

// AddPlace registers a place.
func (m *MemStore) AddPlace(p domain.ExternalPlace) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Places[p.ID] = &p
}

// AddReview registers an unanalyzed review.
func (m *MemStore) AddReview(r domain.Review) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.Reviews[r.ID] = &r
}

// Analysis returns the stored analysis of a review.
func (m *MemStore) Analysis(id string) (domain.ReviewAnalysis, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	a, ok := m.Analyses[id]
	return a, ok
}

// Leased lists reviews with a lease stamp.
func (m *MemStore) Leased() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []string
	for id, r := range m.Reviews {
		if r.AnalysisClaimedAt != nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (m *MemStore) ClaimUnanalyzedCtx(ctx context.Context, req domain.ClaimRequest) ([]domain.Review, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-req.LeaseTTL)
	only := map[string]bool{}
	for _, id := range req.ReviewIDs {
		only[id] = true
	}

	pendingSpec := specs.NotAnalyzed()
	var cand []*domain.Review
	for _, r := range m.Reviews {
		if r.ExternalPlaceID != req.ExternalPlaceID || !pendingSpec.IsSatisfiedBy(ctx, *r) {
			continue
		}
		if r.AnalysisClaimedAt != nil && !r.AnalysisClaimedAt.Before(cutoff) {
			continue
		}
		if len(only) > 0 && !only[r.ID] {
			continue
		}
		cand = append(cand, r)
	}
	sort.Slice(cand, func(i, j int) bool {
		a, b := cand[i], cand[j]
		switch {
		case a.PostedAt == nil && b.PostedAt != nil:
			return false
		case a.PostedAt != nil && b.PostedAt == nil:
			return true
		case a.PostedAt != nil && b.PostedAt != nil && !a.PostedAt.Equal(*b.PostedAt):
			return a.PostedAt.After(*b.PostedAt)
		}
		return a.ID < b.ID
	})
	if len(cand) > req.Limit {
		cand = cand[:req.Limit]
	}
	out := make([]domain.Review, 0, len(cand))
	for _, r := range cand {
		t := now
		r.AnalysisClaimedAt, r.AnalysisClaimedBy = &t, req.Owner
		out = append(out, *r)
	}
	return out, nil
}

func (m *MemStore) RenewClaimsCtx(_ context.Context, owner string, ids []string, now time.Time) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var held []string
	for _, id := range ids {
		r, ok := m.Reviews[id]
		if !ok || r.Sentiment != nil || r.AnalysisClaimedAt == nil || r.AnalysisClaimedBy != owner {
			continue
		}
		t := now
		r.AnalysisClaimedAt = &t
		held = append(held, id)
	}
	return held, nil
}

// Steal hands the lease of a review to another owner, as a concurrent run
// claiming an expired lease would.
func (m *MemStore) Steal(id, owner string, at time.Time) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if r, ok := m.Reviews[id]; ok {
		r.AnalysisClaimedAt, r.AnalysisClaimedBy = &at, owner
	}
}

// ClaimedBy returns the lease owner of a review, empty when unleased.
func (m *MemStore) ClaimedBy(id string) string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if r, ok := m.Reviews[id]; ok && r.AnalysisClaimedAt != nil {
		return r.AnalysisClaimedBy
	}
	return ""
}

func (m *MemStore) SaveAnalysesCtx(_ context.Context, placeID, owner string, analyses []domain.ReviewAnalysis) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for _, a := range analyses {
		r, ok := m.Reviews[a.ReviewID]
		if !ok || r.ExternalPlaceID != placeID {
			return errs.NewDB("MemStore.SaveAnalysesCtx", "review not found for place", nil)
		}
		if r.Sentiment != nil || r.AnalysisClaimedAt == nil || r.AnalysisClaimedBy != owner {
			return errs.NewDB("MemStore.SaveAnalysesCtx", "review "+r.ID+" not leased to this run", nil)
		}
	}
	for _, a := range analyses {
		r := m.Reviews[a.ReviewID]
		s := string(a.Sentiment)
		score := a.OverallScore
		r.Sentiment, r.OverallScore, r.AnalysisClaimedAt, r.AnalysisClaimedBy = &s, &score, nil, ""
		m.Analyses[a.ReviewID] = a
	}
	return nil
}

// ReleaseClaimsCtx clears leases owner holds; Released records the ids it
// actually cleared.
func (m *MemStore) ReleaseClaimsCtx(_ context.Context, owner string, ids []string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, id := range ids {
		r, ok := m.Reviews[id]
		if !ok || r.AnalysisClaimedBy != owner {
			continue
		}
		r.AnalysisClaimedAt, r.AnalysisClaimedBy = nil, ""
		m.Released = append(m.Released, id)
	}
	return nil
}

func (m *MemStore) ResetAnalysisCtx(_ context.Context, placeID string, ids []string) (int64, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	only := map[string]bool{}
	for _, id := range ids {
		only[id] = true
	}
	var n int64
	for id, r := range m.Reviews {
		if r.ExternalPlaceID != placeID || (len(only) > 0 && !only[id]) {
			continue
		}
		r.Sentiment, r.OverallScore, r.AnalysisClaimedAt, r.AnalysisClaimedBy = nil, nil, nil, ""
		delete(m.Analyses, id)
		n++
	}
	return n, nil
}

func (m *MemStore) CountReviewsCtx(_ context.Context, placeID string, cutoff time.Time) (domain.ReviewCounts, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var c domain.ReviewCounts
	for _, r := range m.Reviews {
		if r.ExternalPlaceID != placeID {
			continue
		}
		c.Total++
		if r.Sentiment == nil {
			c.Unanalyzed++
			if r.AnalysisClaimedAt != nil && !r.AnalysisClaimedAt.Before(cutoff) {
				c.Leased++
			}
		}
	}
	return c, nil
}

func (m *MemStore) SampleUnanalyzedCtx(_ context.Context, placeID string, limit int) ([]domain.ReviewSample, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []domain.ReviewSample
	for _, r := range m.Reviews {
		if r.ExternalPlaceID == placeID && r.Sentiment == nil {
			out = append(out, domain.ReviewSample{ID: r.ID, Provider: r.Provider, TextLength: len([]rune(r.Text())), PostedAt: r.PostedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) LatestReviewsCtx(_ context.Context, limit int) ([]domain.LatestReview, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []domain.LatestReview
	for _, r := range m.Reviews {
		out = append(out, domain.LatestReview{
			ID: r.ID, ExternalPlaceID: r.ExternalPlaceID, Provider: r.Provider, RatingValue: r.RatingValue,
			ReviewText: r.ReviewText, Sentiment: r.Sentiment, OverallScore: r.OverallScore, PostedAt: r.PostedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) InsertCampaignReviewCtx(_ context.Context, r *domain.CampaignReview) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.Inserted = append(m.Inserted, *r)
	posted := r.PostedAt
	m.Reviews[r.ID] = &domain.Review{
		ID: r.ID, ExternalPlaceID: r.ExternalPlaceID, Provider: domain.ProviderCampaign,
		ReviewText: r.ReviewText, AuthorName: r.AuthorName, PostedAt: &posted, CreatedAt: posted,
	}
	return nil
}

func (m *MemStore) GetPlaceCtx(_ context.Context, id string) (*domain.ExternalPlace, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	p, ok := m.Places[id]
	if !ok {
		return nil, errs.NewNotFound("MemStore.GetPlaceCtx", "external_place", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) FindBusinessCtx(_ context.Context, owner, place string) (*domain.Business, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, b := range m.Businesses {
		if b.OwnerUserID == owner && b.ExternalPlaceID == place {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateBusinessCtx(_ context.Context, b *domain.Business) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.Businesses = append(m.Businesses, *b)
	return nil
}

func (m *MemStore) OwnsPlaceCtx(ctx context.Context, owner, place string) (bool, error) {
	b, err := m.FindBusinessCtx(ctx, owner, place)
	return b != nil, err
}

func (m *MemStore) HasSubscriptionCtx(_ context.Context, user string) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, s := range m.Subscriptions {
		if s.UserID == user {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) CreateSubscriptionCtx(_ context.Context, s *domain.Subscription) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.Subscriptions = append(m.Subscriptions, *s)
	return nil
}

func (m *MemStore) ListCompetitorsCtx(_ context.Context, businessID string) ([]domain.CompetitorView, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []domain.CompetitorView
	for _, c := range m.Competitors {
		if c.BusinessID != businessID {
			continue
		}
		v := domain.CompetitorView{Competitor: c}
		if p, ok := m.Places[c.ExternalPlaceID]; ok {
			cp := *p
			v.Place = &cp
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *MemStore) CompetitorRanksCtx(_ context.Context, businessID string) ([]int, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var ranks []int
	for _, c := range m.Competitors {
		if c.BusinessID == businessID {
			ranks = append(ranks, c.Rank)
		}
	}
	sort.Ints(ranks)
	return ranks, nil
}

// ErrDuplicate is returned by InsertCompetitorCtx for an existing pair.
var ErrDuplicate = errs.NewBiz("MemStore.InsertCompetitorCtx", "competitor already added", nil)

func (m *MemStore) InsertCompetitorCtx(_ context.Context, c *domain.Competitor) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, e := range m.Competitors {
		if e.BusinessID == c.BusinessID && (e.ExternalPlaceID == c.ExternalPlaceID || e.Rank == c.Rank) {
			return ErrDuplicate
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	m.Competitors = append(m.Competitors, *c)
	return nil
}

func (m *MemStore) CompetitorOwnerCtx(_ context.Context, id string) (*domain.Competitor, string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, c := range m.Competitors {
		if c.ID != id {
			continue
		}
		for _, b := range m.Businesses {
			if b.ID == c.BusinessID {
				cp := c
				return &cp, b.OwnerUserID, nil
			}
		}
	}
	return nil, "", errs.NewNotFound("MemStore.CompetitorOwnerCtx", "competitor", id)
}

func (m *MemStore) DeleteCompetitorCtx(_ context.Context, id string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := m.Competitors[:0]
	for _, c := range m.Competitors {
		if c.ID != id {
			out = append(out, c)
		}
	}
	m.Competitors = out
	return nil
}

func (m *MemStore) GetCampaignByShortCodeCtx(_ context.Context, code string) (*domain.Campaign, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	c, ok := m.Campaigns[code]
	if !ok {
		return nil, errs.NewNotFound("MemStore.GetCampaignByShortCodeCtx", "campaign", code)
	}
	cp := *c
	return &cp, nil
}

func (m *MemStore) IncrementCampaignCounterCtx(_ context.Context, id, counter string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, c := range m.Campaigns {
		if c.ID != id {
			continue
		}
		switch counter {
		case domain.CounterViews:
			c.ViewsCount++
		case domain.CounterInternalFeedback:
			c.InternalFeedbackCount++
		}
	}
	return nil
}

func (m *MemStore) ListStaffCtx(_ context.Context, placeID string) ([]domain.StaffMember, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := []domain.StaffMember{}
	for _, s := range m.Staff {
		if s.ExternalPlaceID == placeID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalMentions > out[j].TotalMentions })
	return out, nil
}

func (m *MemStore) GetStaffMemberCtx(_ context.Context, id string) (*domain.StaffMember, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, s := range m.Staff {
		if s.StaffMemberID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, errs.NewNotFound("MemStore.GetStaffMemberCtx", "staff_member", id)
}

func (m *MemStore) ListStaffMentionsCtx(_ context.Context, id string) ([]domain.StaffMentionDetail, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]domain.StaffMentionDetail{}, m.Mentions[id]...), nil
}

// Begin returns a unit of work backed by the same store.
func (m *MemStore) Begin(context.Context) (domain.UnitOfWork, error) {
	return memUoW{m}, nil
}

type memUoW struct{ *MemStore }

func (memUoW) Commit() error   { return nil }
func (memUoW) Rollback() error { return nil }
