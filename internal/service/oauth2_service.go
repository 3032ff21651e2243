package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"loanportal/userhub/internal/config"
	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/repository"
	"loanportal/userhub/pkg/crypto"
)

var (
	ErrOAuth2ProviderNotConfigured = errors.New("oauth2 provider not configured")
	ErrOAuth2InvalidState          = errors.New("invalid or expired oauth2 state")
	ErrOAuth2TokenExchange         = errors.New("failed to exchange oauth2 code for token")
	ErrOAuth2UserInfo              = errors.New("failed to get oauth2 user info")
)

const (
	oauth2StatePrefix = "oauth2_state:"
	oauth2StateTTL    = 10 * time.Minute
)

// oauth2StateData stores state for CSRF protection during OAuth2 flow.
type oauth2StateData struct {
	Provider     string `json:"provider"`
	CodeVerifier string `json:"code_verifier"`
}

// SignInResult is returned after a completed OAuth2 sign-in.
type SignInResult struct {
	User   *model.UserRecord `json:"user"`
	Tokens *TokenSet         `json:"tokens"`
}

type OAuth2Service interface {
	GetAuthorizationURL(ctx context.Context, provider string) (string, error)
	HandleCallback(ctx context.Context, provider, code, state string) (*SignInResult, error)
}

// oauth2Provider couples a client config with the profile endpoint that
// turns an access token into an Assertion.
type oauth2Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	emailsURL   string
	fetch       func(ctx context.Context, p *oauth2Provider, client *http.Client) (Assertion, error)
}

type oauth2Service struct {
	providers       map[string]*oauth2Provider
	stateStore      repository.StateStore
	identityService IdentityService
	authService     AuthService
	logger          *zap.Logger
}

func NewOAuth2Service(
	cfg config.OAuth2Config,
	stateStore repository.StateStore,
	identityService IdentityService,
	authService AuthService,
	logger *zap.Logger,
) OAuth2Service {
	providers := make(map[string]*oauth2Provider)
	if cfg.GitHub.ClientID != "" {
		providers["github"] = &oauth2Provider{
			name:        "github",
			config:      clientConfig(cfg.GitHub, github.Endpoint),
			userInfoURL: "https://api.github.com/user",
			emailsURL:   "https://api.github.com/user/emails",
			fetch:       fetchGitHubProfile,
		}
	}
	if cfg.Google.ClientID != "" {
		providers["google"] = &oauth2Provider{
			name:        "google",
			config:      clientConfig(cfg.Google, google.Endpoint),
			userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
			fetch:       fetchGoogleProfile,
		}
	}
	return newOAuth2Service(providers, stateStore, identityService, authService, logger)
}

func newOAuth2Service(
	providers map[string]*oauth2Provider,
	stateStore repository.StateStore,
	identityService IdentityService,
	authService AuthService,
	logger *zap.Logger,
) *oauth2Service {
	return &oauth2Service{
		providers:       providers,
		stateStore:      stateStore,
		identityService: identityService,
		authService:     authService,
		logger:          logger,
	}
}

func clientConfig(cfg config.OAuth2ProviderConfig, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}
}

func (s *oauth2Service) provider(name string) (*oauth2Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, ErrOAuth2ProviderNotConfigured
	}
	return p, nil
}

func (s *oauth2Service) GetAuthorizationURL(ctx context.Context, provider string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	stateToken, err := crypto.GenerateOAuthState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	data, err := json.Marshal(oauth2StateData{Provider: provider, CodeVerifier: verifier})
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	if err := s.stateStore.Set(ctx, oauth2StatePrefix+stateToken, data, oauth2StateTTL); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}

	return p.config.AuthCodeURL(stateToken, oauth2.S256ChallengeOption(verifier)), nil
}

func (s *oauth2Service) HandleCallback(ctx context.Context, provider, code, state string) (*SignInResult, error) {
	stateData, err := s.consumeState(ctx, state, provider)
	if err != nil {
		return nil, err
	}
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(stateData.CodeVerifier))
	if err != nil {
		s.logger.Warn("oauth2 code exchange failed", zap.String("provider", provider), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrOAuth2TokenExchange, err)
	}

	assertion, err := p.fetch(ctx, p, p.config.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	user, err := s.identityService.ResolveIdentity(ctx, assertion)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrUserDisabled
	}

	tokens, err := s.authService.IssueTokenSet(ctx, user)
	if err != nil {
		return nil, err
	}
	return &SignInResult{User: user, Tokens: tokens}, nil
}

// consumeState redeems a state token exactly once.
func (s *oauth2Service) consumeState(ctx context.Context, state, expectedProvider string) (*oauth2StateData, error) {
	data, err := s.stateStore.Consume(ctx, oauth2StatePrefix+state)
	if err != nil || data == nil {
		return nil, ErrOAuth2InvalidState
	}

	var stateData oauth2StateData
	if err := json.Unmarshal(data, &stateData); err != nil {
		return nil, ErrOAuth2InvalidState
	}
	if stateData.Provider != expectedProvider {
		return nil, ErrOAuth2InvalidState
	}
	return &stateData, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func fetchGoogleProfile(ctx context.Context, p *oauth2Provider, client *http.Client) (Assertion, error) {
	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, p.userInfoURL, &info); err != nil || info.ID == "" {
		return Assertion{}, fmt.Errorf("%w: google", ErrOAuth2UserInfo)
	}
	if !info.VerifiedEmail {
		return Assertion{}, ErrEmailNotVerified
	}
	return Assertion{
		ProviderID: p.name + "|" + info.ID,
		Email:      info.Email,
		Name:       info.Name,
		AvatarURL:  info.Picture,
	}, nil
}

func fetchGitHubProfile(ctx context.Context, p *oauth2Provider, client *http.Client) (Assertion, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, p.userInfoURL, &user); err != nil || user.ID == 0 {
		return Assertion{}, fmt.Errorf("%w: github", ErrOAuth2UserInfo)
	}

	// The public profile email is optional; the emails endpoint says which
	// addresses GitHub has verified.
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, p.emailsURL, &emails); err != nil {
		return Assertion{}, fmt.Errorf("%w: github emails", ErrOAuth2UserInfo)
	}
	var email string
	for _, e := range emails {
		if e.Primary && e.Verified {
			email = e.Email
			break
		}
	}
	if email == "" {
		return Assertion{}, ErrEmailNotVerified
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return Assertion{
		ProviderID: p.name + "|" + strconv.FormatInt(user.ID, 10),
		Email:      email,
		Name:       name,
		AvatarURL:  user.AvatarURL,
	}, nil
}

var _ OAuth2Service = (*oauth2Service)(nil)
