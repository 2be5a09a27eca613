package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// refresherTokenSource adapts a Refresher to the oauth2.TokenSource
// interface so managed tokens can feed oauth2.NewClient and friends.
type refresherTokenSource struct {
	ctx       context.Context
	refresher *Refresher
	key       string
	threshold float64
}

// TokenSource returns an oauth2.TokenSource that serves the token
// stored under key, refreshing it through the refresher once threshold
// of its lifetime has elapsed. The source is safe for concurrent use;
// concurrent Token calls collapse into one refresh.
func (r *Refresher) TokenSource(ctx context.Context, key string, threshold float64) oauth2.TokenSource {
	return &refresherTokenSource{
		ctx:       ctx,
		refresher: r,
		key:       key,
		threshold: threshold,
	}
}

// Token implements oauth2.TokenSource.
func (ts *refresherTokenSource) Token() (*oauth2.Token, error) {
	token, err := ts.refresher.GetValidTokenWithThreshold(ts.ctx, ts.key, ts.threshold)
	if err != nil {
		return nil, err
	}
	return token.ToOAuth2Token(), nil
}
