package tlog

import "github.com/gin-gonic/gin"

func AuditLoginSuccess(c *gin.Context, accountID, username, provider string) {
	Audit.Info().
		Str("event", "login").
		Str("result", "success").
		Str("account_id", accountID).
		Str("username", username).
		Str("provider", provider).
		Str("ip", c.ClientIP()).
		Send()
}

func AuditLoginFailure(c *gin.Context, provider, reason string) {
	Audit.Warn().
		Str("event", "login").
		Str("result", "failure").
		Str("provider", provider).
		Str("reason", reason).
		Str("ip", c.ClientIP()).
		Send()
}

func AuditAccountCreated(accountID, username, provider string, invite bool) {
	Audit.Info().
		Str("event", "account_created").
		Str("account_id", accountID).
		Str("username", username).
		Str("provider", provider).
		Bool("invite", invite).
		Send()
}

func AuditInviteConsumed(inviteCode, accountID string, recorded bool) {
	Audit.Info().
		Str("event", "invite_consumed").
		Str("invite", inviteCode).
		Str("account_id", accountID).
		Bool("recorded", recorded).
		Send()
}
