package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"
)

// InviteService validates, resolves and consumes invite codes. Disabled or
// unconfigured integrations behave exactly like an invalid invite.
type InviteService interface {
	Enabled() bool
	Validate(ctx context.Context, code string) bool
	ResolveSettings(ctx context.Context, code string) model.InviteSettings
	MarkUsed(ctx context.Context, code string, accountID string) Result
	Available(ctx context.Context) bool
}

// Wizarr sends naive timestamps in a few shapes depending on the version
var wizarrTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const wizarrUsedAtLayout = "2006-01-02T15:04:05.000Z"

type WizarrInviteResponse struct {
	Used      bool    `json:"used"`
	Expires   *string `json:"expires"`
	ReturnURL string  `json:"return_url"`
	Libraries []struct {
		Name string `json:"name"`
	} `json:"libraries"`
	Permissions *struct {
		Download *bool `json:"download"`
		LiveTV   *bool `json:"live_tv"`
		Admin    *bool `json:"admin"`
	} `json:"permissions"`
}

type WizarrInviteUsedRequest struct {
	Used   bool   `json:"used"`
	UsedBy string `json:"used_by"`
	UsedAt string `json:"used_at"`
}

type WizarrServiceConfig struct {
	Enabled bool
	URL     string
	APIKey  string
	// Now is used for tests, defaults to time.Now
	Now func() time.Time
}

type WizarrService struct {
	config     WizarrServiceConfig
	baseURL    *url.URL
	httpClient *http.Client
}

func NewWizarrService(config WizarrServiceConfig) *WizarrService {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &WizarrService{
		config: config,
	}
}

func (wizarr *WizarrService) Init() error {
	wizarr.httpClient = newHTTPClient(false)

	if !wizarr.config.Enabled {
		return nil
	}

	if wizarr.config.URL == "" {
		return errors.New("wizarr url is required when the integration is enabled")
	}

	baseURL, err := url.Parse(strings.TrimSuffix(wizarr.config.URL, "/"))
	if err != nil {
		return fmt.Errorf("invalid wizarr url: %w", err)
	}
	wizarr.baseURL = baseURL

	if wizarr.config.APIKey == "" {
		tlog.App.Warn().Msg("Wizarr integration is enabled without an API key, every invite will be rejected")
	}

	return nil
}

// Enabled reports whether the integration is switched on. An enabled integration
// without an API key still rejects every invite.
func (wizarr *WizarrService) Enabled() bool {
	return wizarr.config.Enabled
}

func (wizarr *WizarrService) configured() bool {
	return wizarr.config.Enabled && wizarr.config.APIKey != "" && wizarr.baseURL != nil
}

func (wizarr *WizarrService) Validate(ctx context.Context, code string) bool {
	if !wizarr.configured() {
		tlog.App.Warn().Msg("Wizarr integration is disabled or API key is missing")
		return false
	}

	invite, err := wizarr.getInvite(ctx, code)
	if err != nil {
		tlog.App.Warn().Err(err).Str("invite", code).Msg("Invalid invite code")
		return false
	}

	if reason := wizarr.rejectReason(invite); reason != "" {
		tlog.App.Warn().Str("invite", code).Str("reason", reason).Msg("Invite code rejected")
		return false
	}

	return true
}

func (wizarr *WizarrService) ResolveSettings(ctx context.Context, code string) model.InviteSettings {
	if !wizarr.configured() {
		return model.InviteSettings{InviteCode: code}
	}

	invite, err := wizarr.getInvite(ctx, code)
	if err != nil {
		tlog.App.Warn().Err(err).Str("invite", code).Msg("Failed to get invite settings")
		return model.InviteSettings{InviteCode: code}
	}

	settings := model.InviteSettings{
		InviteCode: code,
		ReturnURL:  invite.ReturnURL,
		Policy:     policyFromInvite(invite),
	}

	for _, library := range invite.Libraries {
		if library.Name != "" {
			settings.Libraries = append(settings.Libraries, library.Name)
		}
	}

	if invite.Expires != nil {
		expires, err := parseWizarrTime(*invite.Expires)
		if err != nil {
			tlog.App.Warn().Err(err).Str("invite", code).Msg("Invite has an unreadable expiration")
			return model.InviteSettings{InviteCode: code}
		}
		settings.Expiration = &expires
	}

	if reason := wizarr.rejectReason(invite); reason != "" {
		tlog.App.Warn().Str("invite", code).Str("reason", reason).Msg("Ignoring settings of rejected invite")
		return settings
	}

	settings.IsValid = true
	return settings
}

func (wizarr *WizarrService) MarkUsed(ctx context.Context, code string, accountID string) Result {
	if !wizarr.configured() {
		tlog.App.Warn().Msg("Wizarr integration is disabled or API key is missing")
		return NonFatal(fmt.Errorf("%w: wizarr integration is not enabled", ErrInvite))
	}

	payload, err := json.Marshal(WizarrInviteUsedRequest{
		Used:   true,
		UsedBy: accountID,
		UsedAt: wizarr.config.Now().UTC().Format(wizarrUsedAtLayout),
	})
	if err != nil {
		return NonFatal(err)
	}

	res, err := wizarr.do(ctx, http.MethodPatch, wizarr.invitePath(code), bytes.NewReader(payload))
	if err != nil {
		tlog.App.Warn().Err(err).Str("invite", code).Msg("Failed to mark invite as used")
		return NonFatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxUpstreamBody))
		err := &UpstreamError{Service: "wizarr", Status: res.StatusCode, Body: string(body)}
		tlog.App.Warn().Err(err).Str("invite", code).Str("body", err.Body).Msg("Failed to mark invite as used")
		return NonFatal(err)
	}

	tlog.App.Info().Str("invite", code).Str("account", accountID).Msg("Marked invite as used")
	return Succeeded()
}

func (wizarr *WizarrService) Available(ctx context.Context) bool {
	if !wizarr.config.Enabled || wizarr.baseURL == nil {
		return false
	}

	res, err := wizarr.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		tlog.App.Debug().Err(err).Msg("Wizarr health check failed")
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode >= 200 && res.StatusCode < 300
}

func (wizarr *WizarrService) rejectReason(invite WizarrInviteResponse) string {
	if invite.Used {
		return "already used"
	}

	if invite.Expires != nil {
		expires, err := parseWizarrTime(*invite.Expires)
		if err != nil {
			return "unreadable expiration"
		}
		if expires.Before(wizarr.config.Now()) {
			return "expired"
		}
	}

	return ""
}

func (wizarr *WizarrService) getInvite(ctx context.Context, code string) (WizarrInviteResponse, error) {
	var invite WizarrInviteResponse

	if strings.TrimSpace(code) == "" {
		return invite, ErrInvalidInvite
	}

	res, err := wizarr.do(ctx, http.MethodGet, wizarr.invitePath(code), nil)
	if err != nil {
		return invite, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return invite, fmt.Errorf("%w: wizarr response: %w", ErrUpstream, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return invite, &UpstreamError{Service: "wizarr", Status: res.StatusCode, Body: truncate(string(body))}
	}

	if err := json.Unmarshal(body, &invite); err != nil {
		return invite, fmt.Errorf("%w: wizarr returned invalid json: %w", ErrUpstream, err)
	}

	return invite, nil
}

func (wizarr *WizarrService) invitePath(code string) string {
	return "/api/invites/" + url.PathEscape(code)
}

func (wizarr *WizarrService) do(ctx context.Context, method string, path string, body io.Reader) (*http.Response, error) {
	target := wizarr.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if wizarr.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+wizarr.config.APIKey)
	}

	res, err := wizarr.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: wizarr request: %w", ErrUpstream, err)
	}

	return res, nil
}

func policyFromInvite(invite WizarrInviteResponse) *model.UserPolicy {
	policy := model.DefaultUserPolicy()

	if invite.Permissions != nil {
		if invite.Permissions.Download != nil {
			policy.EnableContentDownloading = *invite.Permissions.Download
		}
		if invite.Permissions.LiveTV != nil {
			policy.EnableLiveTvAccess = *invite.Permissions.LiveTV
		}
		if invite.Permissions.Admin != nil {
			policy.IsAdministrator = *invite.Permissions.Admin
		}
	}

	return &policy
}

func parseWizarrTime(value string) (time.Time, error) {
	for _, layout := range wizarrTimeLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown time format %q", value)
}
