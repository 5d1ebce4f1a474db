package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/metrics"
	"github.com/akmatori/responder/internal/notify/email"
	"github.com/akmatori/responder/internal/utils"
)

// EventEscalationPage is the log event type of a direct page
const EventEscalationPage = "escalation_page"

// DirectMessenger sends a Slack direct message
type DirectMessenger interface {
	IsConfigured() bool
	DirectMessage(ctx context.Context, userID, text string, blocks ...slack.Block) error
}

// Mailer sends one email
type Mailer interface {
	Send(ctx context.Context, req *email.Request) error
}

// UserPager pages escalation targets over Slack DM when the user has a Slack
// ID and a bot is configured, and over email otherwise.
type UserPager struct {
	db           *gorm.DB
	slack        DirectMessenger
	mailer       Mailer
	clock        clock.Clock
	dashboardURL string
}

// NewUserPager creates a pager. Either transport may be nil.
func NewUserPager(db *gorm.DB, dm DirectMessenger, mailer Mailer, clk clock.Clock, dashboardURL string) *UserPager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &UserPager{db: db, slack: dm, mailer: mailer, clock: clk, dashboardURL: dashboardURL}
}

// Page delivers one escalation page and records it in the notification log
func (p *UserPager) Page(ctx context.Context, user *database.User, inc *database.Incident, level int) error {
	entry := database.NotificationLog{
		IncidentID: inc.ID,
		EventType:  EventEscalationPage,
		Target:     "user:" + user.Name,
		Status:     database.NotificationPending,
	}
	if err := p.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write page log: %w", err)
	}

	channel, err := p.deliver(ctx, user, inc, level)

	updates := map[string]interface{}{}
	if err != nil {
		updates["status"] = database.NotificationFailed
		updates["error_message"] = database.TruncateError(err.Error())
	} else {
		updates["status"] = database.NotificationSent
		updates["sent_at"] = p.clock.Now()
	}
	metrics.NotificationsTotal.WithLabelValues(channel, fmt.Sprint(updates["status"])).Inc()
	if uerr := p.db.WithContext(ctx).Model(&entry).Updates(updates).Error; uerr != nil {
		zap.L().Error("Notify: failed to update page log", zap.Uint("log_id", entry.ID), zap.Error(uerr))
	}

	if err != nil {
		return err
	}
	zap.L().Info("Notify: paged user",
		zap.String("user", user.Name),
		zap.String("via", channel),
		zap.String("incident", inc.UUID),
		zap.Int("level", level),
	)
	return nil
}

func (p *UserPager) deliver(ctx context.Context, user *database.User, inc *database.Incident, level int) (string, error) {
	text := p.pageText(inc, level)

	if user.SlackUserID != "" && p.slack != nil && p.slack.IsConfigured() {
		block := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
		return string(database.ChannelSlack), p.slack.DirectMessage(ctx, user.SlackUserID, text, block)
	}

	if user.Email != "" && p.mailer != nil {
		err := p.mailer.Send(ctx, &email.Request{
			To:      []string{user.Email},
			Subject: fmt.Sprintf("[PAGE L%d] %s", level, inc.Title),
			Body:    text,
		})
		return string(database.ChannelEmail), err
	}

	return "none", errors.New("user has no reachable contact")
}

func (p *UserPager) pageText(inc *database.Incident, level int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *You are being paged* (escalation level %d)\n", database.GetSeverityEmoji(inc.Severity), level)
	fmt.Fprintf(&b, "*%s*\n", utils.TruncateText(inc.Title, 200))
	fmt.Fprintf(&b, "Severity: %s | Service: %s | Open for %s",
		strings.ToUpper(string(inc.Severity)), inc.Service, utils.FormatDuration(p.clock.Now().Sub(inc.StartedAt)))
	if p.dashboardURL != "" {
		fmt.Fprintf(&b, "\n%s/incidents/%s", strings.TrimRight(p.dashboardURL, "/"), inc.UUID)
	}
	return b.String()
}
