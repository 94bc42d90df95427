package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/foxseedlab/mentorpack/internal/notify"
)

// Notifier posts facts to a Discord channel over the REST API. No gateway
// connection is opened.
type Notifier struct {
	session   *discordgo.Session
	channelID string
}

func NewNotifier(token, channelID string) (*Notifier, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &Notifier{session: s, channelID: channelID}, nil
}

func (n *Notifier) Send(ctx context.Context, fact notify.Fact) error {
	_, err := n.session.ChannelMessageSend(n.channelID, formatFact(fact), discordgo.WithContext(ctx))
	if err != nil {
		if isRESTStatus(err, http.StatusNotFound) {
			return fmt.Errorf("discord channel %s not found: %w", n.channelID, err)
		}
		return fmt.Errorf("send %s to discord: %w", fact.Type, err)
	}
	return nil
}

func isRESTStatus(err error, status int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == status
}

func formatFact(fact notify.Fact) string {
	var b strings.Builder
	switch fact.Type {
	case notify.FactOnboardingEligible:
		b.WriteString("🎉 New student ready for onboarding")
	case notify.FactRenewalReminder:
		fmt.Fprintf(&b, "🔁 Renewal reminder after session %v", fact.Payload["sessionNumber"])
	case notify.FactFinalGraceWarning:
		b.WriteString("⏳ Grace period ending soon")
	default:
		b.WriteString(string(fact.Type))
	}
	fmt.Fprintf(&b, "\nuser: `%s`", fact.UserID)
	if deadline, ok := fact.Payload["gracePeriodEndsAt"].(time.Time); ok {
		fmt.Fprintf(&b, "\ngrace ends: <t:%d:R>", deadline.Unix())
	}
	for _, key := range []string{"orderId", "sessionPackId", "seatId"} {
		if v, ok := fact.Payload[key]; ok {
			fmt.Fprintf(&b, "\n%s: `%v`", key, v)
		}
	}
	return b.String()
}
