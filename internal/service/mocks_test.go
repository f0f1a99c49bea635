package service

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// fakeCampaignRepo keeps campaigns in memory; campaigns are stored by
// value so GetByID hands out snapshots like a real row scan would.
type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]model.Campaign
	nextID    int

	leaseToken   map[int]uuid.UUID
	leaseExpires map[int]time.Time
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns:    make(map[int]model.Campaign),
		leaseToken:   make(map[int]uuid.UUID),
		leaseExpires: make(map[int]time.Time),
	}
}

func (r *fakeCampaignRepo) put(c model.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
}

func (r *fakeCampaignRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	r.campaigns[c.ID] = *c
	return nil
}

func (r *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	out := c
	return &out, nil
}

func (r *fakeCampaignRepo) Update(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; !ok {
		return appErrors.NewNotFound("campaign", c.ID)
	}
	r.campaigns[c.ID] = *c
	return nil
}

func (r *fakeCampaignRepo) UpdateStatus(campaignID int, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewNotFound("campaign", campaignID)
	}
	c.Status = status
	r.campaigns[campaignID] = c
	return nil
}

func (r *fakeCampaignRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[id]; !ok {
		return appErrors.NewNotFound("campaign", id)
	}
	delete(r.campaigns, id)
	return nil
}

func (r *fakeCampaignRepo) List(offset, limit int, search string, status model.Status) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, 0, len(r.campaigns))
	for id, c := range r.campaigns {
		if status != "" && c.Status != status {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	total := len(ids)
	var out []*model.Campaign
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		c := r.campaigns[ids[i]]
		out = append(out, &c)
	}
	return out, total, nil
}

func (r *fakeCampaignRepo) SetSchedule(campaignID int, opts *model.ScheduleOptions, nextRun *time.Time, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewNotFound("campaign", campaignID)
	}
	c.ScheduleOptions = opts
	c.NextRunAt = nextRun
	c.Status = status
	r.campaigns[campaignID] = c
	return nil
}

func (r *fakeCampaignRepo) SetNextRun(campaignID int, nextRun *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewNotFound("campaign", campaignID)
	}
	c.NextRunAt = nextRun
	r.campaigns[campaignID] = c
	return nil
}

func (r *fakeCampaignRepo) ClearSchedule(campaignID int) error {
	return r.SetNextRun(campaignID, nil)
}

func (r *fakeCampaignRepo) DueCampaigns(now time.Time, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*model.Campaign
	for _, c := range r.campaigns {
		if c.Status != model.StatusScheduled && c.Status != model.StatusInProgress {
			continue
		}
		if c.NextRunAt == nil || c.NextRunAt.After(now) {
			continue
		}
		cc := c
		due = append(due, &cc)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeCampaignRepo) ClaimLease(campaignID int, token uuid.UUID, now time.Time, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[campaignID]; !ok {
		return false, nil
	}
	if exp, held := r.leaseExpires[campaignID]; held && exp.After(now) {
		return false, nil
	}
	r.leaseToken[campaignID] = token
	r.leaseExpires[campaignID] = now.Add(ttl)
	return true, nil
}

func (r *fakeCampaignRepo) ReleaseLease(campaignID int, token uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leaseToken[campaignID] == token {
		delete(r.leaseToken, campaignID)
		delete(r.leaseExpires, campaignID)
	}
	return nil
}

type fakeRecipientRepo struct {
	mu         sync.Mutex
	recipients map[int]model.Recipient
	nextID     int
}

func newFakeRecipientRepo() *fakeRecipientRepo {
	return &fakeRecipientRepo{recipients: make(map[int]model.Recipient)}
}

func (r *fakeRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return nil, appErrors.NewNotFound("recipient", id)
	}
	out := rec
	return &out, nil
}

func (r *fakeRecipientRepo) FindByContact(email, phone string) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recipients {
		if (email != "" && rec.Email == email) || (phone != "" && rec.Phone == phone) {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeRecipientRepo) Create(rec *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	r.recipients[rec.ID] = *rec
	return nil
}

func (r *fakeRecipientRepo) Update(rec *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recipients[rec.ID]; !ok {
		return appErrors.NewNotFound("recipient", rec.ID)
	}
	r.recipients[rec.ID] = *rec
	return nil
}

type memberRow struct {
	campaignID  int
	recipientID int
	status      model.RecipientStatus
	reason      string
}

// fakeMemberRepo holds join rows plus the recipient records behind
// them, so PendingBatch can return full recipients. updateStatusErr,
// when set, fails every outcome write.
type fakeMemberRepo struct {
	mu              sync.Mutex
	rows            []*memberRow
	recipients      map[int]*model.Recipient
	updateStatusErr error
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{recipients: make(map[int]*model.Recipient)}
}

func (r *fakeMemberRepo) attach(campaignID int, rec *model.Recipient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipients[rec.ID] = rec
	r.rows = append(r.rows, &memberRow{
		campaignID:  campaignID,
		recipientID: rec.ID,
		status:      model.RecipientPending,
	})
}

func (r *fakeMemberRepo) row(campaignID, recipientID int) *memberRow {
	for _, row := range r.rows {
		if row.campaignID == campaignID && row.recipientID == recipientID {
			return row
		}
	}
	return nil
}

func (r *fakeMemberRepo) Add(campaignID, recipientID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.row(campaignID, recipientID) != nil {
		return false, nil
	}
	r.rows = append(r.rows, &memberRow{
		campaignID:  campaignID,
		recipientID: recipientID,
		status:      model.RecipientPending,
	})
	return true, nil
}

func (r *fakeMemberRepo) Remove(campaignID int, recipientIDs []int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[int]bool, len(recipientIDs))
	for _, id := range recipientIDs {
		drop[id] = true
	}
	var kept []*memberRow
	removed := 0
	for _, row := range r.rows {
		if row.campaignID == campaignID && drop[row.recipientID] {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return removed, nil
}

func (r *fakeMemberRepo) List(campaignID, offset, limit int, status model.RecipientStatus, search string) ([]*model.CampaignRecipientDetail, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CampaignRecipientDetail
	for _, row := range r.rows {
		if row.campaignID != campaignID {
			continue
		}
		if status != "" && row.status != status {
			continue
		}
		rec := r.recipients[row.recipientID]
		detail := &model.CampaignRecipientDetail{
			RecipientID:   row.recipientID,
			Status:        row.status,
			FailureReason: row.reason,
		}
		if rec != nil {
			detail.Name = rec.Name
			detail.Email = rec.Email
			detail.Phone = rec.Phone
		}
		out = append(out, detail)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeMemberRepo) PendingBatch(campaignID, limit int) ([]*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Recipient
	for _, row := range r.rows {
		if row.campaignID != campaignID || row.status != model.RecipientPending {
			continue
		}
		if rec := r.recipients[row.recipientID]; rec != nil {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMemberRepo) PendingCount(campaignID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.campaignID == campaignID && row.status == model.RecipientPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeMemberRepo) UpdateStatus(campaignID, recipientID int, status model.RecipientStatus, reason string, attemptedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateStatusErr != nil {
		return r.updateStatusErr
	}
	row := r.row(campaignID, recipientID)
	if row == nil {
		return appErrors.NewNotFound("campaign recipient", recipientID)
	}
	row.status = status
	row.reason = reason
	return nil
}

func (r *fakeMemberRepo) Reset(campaignID int, includeSent bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.campaignID != campaignID {
			continue
		}
		if row.status == model.RecipientFailed || (includeSent && row.status == model.RecipientSent) {
			row.status = model.RecipientPending
			row.reason = ""
			n++
		}
	}
	return n, nil
}

func (r *fakeMemberRepo) CountByStatus(campaignID int) (*model.CampaignMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &model.CampaignMetrics{CampaignID: campaignID}
	for _, row := range r.rows {
		if row.campaignID != campaignID {
			continue
		}
		m.Total++
		switch row.status {
		case model.RecipientSent:
			m.Sent++
		case model.RecipientFailed:
			m.Failed++
		default:
			m.Pending++
		}
	}
	return m, nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates []*model.MessageTemplate
	nextID    int
}

func (r *fakeTemplateRepo) Create(t *model.MessageTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.templates {
		if existing.CampaignID == t.CampaignID && existing.Channel == t.Channel {
			return appErrors.NewDuplicateChannel(t.CampaignID, t.Channel)
		}
	}
	r.nextID++
	t.ID = r.nextID
	r.templates = append(r.templates, t)
	return nil
}

func (r *fakeTemplateRepo) GetByID(campaignID, id int) (*model.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.CampaignID == campaignID && t.ID == id {
			return t, nil
		}
	}
	return nil, appErrors.NewNotFound("message template", id)
}

func (r *fakeTemplateRepo) GetByChannel(campaignID int, channel string) (*model.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.CampaignID == campaignID && t.Channel == channel {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakeTemplateRepo) ListByCampaign(campaignID int) ([]*model.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MessageTemplate
	for _, t := range r.templates {
		if t.CampaignID == campaignID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTemplateRepo) Update(t *model.MessageTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.templates {
		if existing.CampaignID == t.CampaignID && existing.ID == t.ID {
			r.templates[i] = t
			return nil
		}
	}
	return appErrors.NewNotFound("message template", t.ID)
}

func (r *fakeTemplateRepo) Delete(campaignID, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.templates {
		if t.CampaignID == campaignID && t.ID == id {
			r.templates = append(r.templates[:i], r.templates[i+1:]...)
			return nil
		}
	}
	return appErrors.NewNotFound("message template", id)
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []*model.DeliveryAttempt
}

func (r *fakeAttemptRepo) Record(a *model.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *fakeAttemptRepo) ChannelMetrics(campaignID int) ([]*model.ChannelMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byChannel := make(map[string]*model.ChannelMetrics)
	for _, a := range r.attempts {
		if a.CampaignID != campaignID {
			continue
		}
		m, ok := byChannel[a.Channel]
		if !ok {
			m = &model.ChannelMetrics{Channel: a.Channel}
			byChannel[a.Channel] = m
		}
		m.Attempted++
		if a.Status == model.RecipientSent {
			m.Sent++
		} else {
			m.Failed++
		}
	}
	var out []*model.ChannelMetrics
	for _, m := range byChannel {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]func(body []byte) error
}

type publishedMessage struct {
	topic string
	body  []byte
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string]func(body []byte) error)}
}

func (q *fakeQueue) Publish(topic string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, publishedMessage{topic: topic, body: body})
	return nil
}

func (q *fakeQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = handler
	return nil
}

func (q *fakeQueue) publishedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published)
}
