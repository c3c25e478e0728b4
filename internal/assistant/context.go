package assistant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/internal/inbox"
	"github.com/wolfman30/estate-crm/internal/leads"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

const (
	defaultContextTTL  = 2 * time.Minute
	aggregateLeadLimit = 1000
	leadMessageLimit   = 10
	contextKeyPrefix   = "estatecrm:assistant:context:"
)

type LeadReader interface {
	GetByID(ctx context.Context, id string) (*leads.Lead, error)
	List(ctx context.Context, filter leads.ListFilter) ([]*leads.Lead, error)
}

type MessageReader interface {
	ListByLead(ctx context.Context, leadID string, limit int) ([]inbox.Message, error)
}

type AccountLister interface {
	All(ctx context.Context) ([]inbox.Account, error)
	ByOwner(ctx context.Context, ownerID string, channel channels.Channel) ([]inbox.Account, error)
}

// ContextBuilder renders CRM data into prompt context. Aggregate contexts
// are cached in Redis per caller scope; single-lead contexts never are.
type ContextBuilder struct {
	leads    LeadReader
	messages MessageReader
	accounts AccountLister
	cache    *redis.Client
	ttl      time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

func NewContextBuilder(leadReader LeadReader, messages MessageReader, accounts AccountLister, logger *logging.Logger) *ContextBuilder {
	if logger == nil {
		logger = logging.Default()
	}
	return &ContextBuilder{
		leads:    leadReader,
		messages: messages,
		accounts: accounts,
		ttl:      defaultContextTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// WithCache enables the Redis aggregate cache. A zero ttl keeps the default.
func (b *ContextBuilder) WithCache(client *redis.Client, ttl time.Duration) *ContextBuilder {
	b.cache = client
	if ttl > 0 {
		b.ttl = ttl
	}
	return b
}

func (b *ContextBuilder) Build(ctx context.Context, caller auth.Caller, mode Mode, leadID string) (string, error) {
	if leadID != "" {
		return b.leadContext(ctx, caller, leadID)
	}

	scope := "all"
	if !caller.Elevated() {
		scope = "agent:" + caller.ID
	}
	key := contextKeyPrefix + string(mode) + ":" + scope
	if cached, ok := b.cached(ctx, key); ok {
		return cached, nil
	}

	filter := leads.ListFilter{Limit: aggregateLeadLimit}
	if !caller.Elevated() {
		filter.AssignedTo = caller.ID
	}
	list, err := b.leads.List(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("assistant: list leads: %w", err)
	}

	var out string
	if mode == ModeCRM {
		out = b.operationalSummary(list)
		if health, err := b.healthSummary(ctx, caller); err != nil {
			b.logger.Warn("assistant health summary unavailable", "error", err)
		} else {
			out += "\n" + health
		}
	} else {
		out = b.generalSummary(list)
	}
	b.store(ctx, key, out)
	return out, nil
}

func (b *ContextBuilder) leadContext(ctx context.Context, caller auth.Caller, leadID string) (string, error) {
	lead, err := b.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			return "", ErrLeadNotFound
		}
		return "", fmt.Errorf("assistant: load lead: %w", err)
	}
	if !leads.CanAccess(caller, lead) {
		return "", ErrForbidden
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Lead %s\n", lead.ID)
	fmt.Fprintf(&sb, "- Name: %s\n", lead.Name)
	fmt.Fprintf(&sb, "- Status: %s, priority %s, score %d\n", lead.Status, lead.Priority, lead.Score)
	fmt.Fprintf(&sb, "- Source: %s\n", lead.Source)
	if lead.Budget != "" {
		fmt.Fprintf(&sb, "- Budget: %s\n", lead.Budget)
	}
	if lead.Message != "" {
		fmt.Fprintf(&sb, "- Enquiry: %s\n", lead.Message)
	}
	if lead.Provenance.PageSlug != "" {
		fmt.Fprintf(&sb, "- Landing page: %s\n", lead.Provenance.PageSlug)
	}
	if lead.Provenance.UTMCampaign != "" {
		fmt.Fprintf(&sb, "- Campaign: %s\n", lead.Provenance.UTMCampaign)
	}
	fmt.Fprintf(&sb, "- Created: %s\n", lead.CreatedAt.UTC().Format(time.RFC3339))

	if b.messages != nil {
		msgs, err := b.messages.ListByLead(ctx, lead.ID, leadMessageLimit)
		if err != nil {
			b.logger.Warn("assistant lead messages unavailable", "error", err, "lead_id", lead.ID)
		} else if len(msgs) > 0 {
			sb.WriteString("Recent messages (newest first):\n")
			for _, m := range msgs {
				who := "lead"
				if m.Direction == inbox.DirectionOutgoing {
					who = "agent"
				}
				fmt.Fprintf(&sb, "- [%s %s %s] %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.Channel, who, m.Body)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *ContextBuilder) generalSummary(list []*leads.Lead) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Leads in scope: %d\n", len(list))
	writeCounts(&sb, "By status", countBy(list, func(l *leads.Lead) string { return string(l.Status) }))
	return strings.TrimRight(sb.String(), "\n")
}

func (b *ContextBuilder) operationalSummary(list []*leads.Lead) string {
	weekAgo := b.now().Add(-7 * 24 * time.Hour)
	recent, unassigned := 0, 0
	var pipelineValue float64
	for _, l := range list {
		if l.CreatedAt.After(weekAgo) {
			recent++
		}
		if l.AssignedTo == "" {
			unassigned++
		}
		if l.Status != leads.StatusLost {
			pipelineValue += l.ExpectedValue
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Leads in scope: %d (new in last 7 days: %d, unassigned: %d)\n", len(list), recent, unassigned)
	fmt.Fprintf(&sb, "Open pipeline value: %.0f\n", pipelineValue)
	writeCounts(&sb, "By status", countBy(list, func(l *leads.Lead) string { return string(l.Status) }))
	writeCounts(&sb, "By source", countBy(list, func(l *leads.Lead) string { return string(l.Source) }))
	return strings.TrimRight(sb.String(), "\n")
}

// healthSummary lists every account for elevated callers and only the
// caller's own accounts otherwise.
func (b *ContextBuilder) healthSummary(ctx context.Context, caller auth.Caller) (string, error) {
	if b.accounts == nil {
		return "Channel accounts: unknown", nil
	}
	var (
		accounts []inbox.Account
		err      error
	)
	if caller.Elevated() {
		accounts, err = b.accounts.All(ctx)
	} else {
		accounts, err = b.accounts.ByOwner(ctx, caller.ID, "")
	}
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Channel accounts: %d\n", len(accounts))
	for _, a := range accounts {
		line := fmt.Sprintf("- %s %s: %s", a.Channel, a.DisplayName, a.Status)
		if a.Status != inbox.AccountConnected && a.LastError != "" {
			line += " (" + a.LastError + ")"
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *ContextBuilder) cached(ctx context.Context, key string) (string, bool) {
	if b.cache == nil {
		return "", false
	}
	val, err := b.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		b.logger.Warn("assistant context cache read failed", "error", err)
		return "", false
	}
	return val, true
}

func (b *ContextBuilder) store(ctx context.Context, key, value string) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Set(ctx, key, value, b.ttl).Err(); err != nil {
		b.logger.Warn("assistant context cache write failed", "error", err)
	}
}

func countBy(list []*leads.Lead, key func(*leads.Lead) string) map[string]int {
	out := make(map[string]int)
	for _, l := range list {
		out[key(l)]++
	}
	return out
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Fprintf(sb, "%s: %s\n", title, strings.Join(parts, ", "))
}
