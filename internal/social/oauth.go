package social

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Credentials holds the app and user tokens for the platform API.
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
}

// oauthSigner builds OAuth 1.0a user-context authorization headers.
type oauthSigner struct {
	creds Credentials
	nonce func() string
	now   func() time.Time
}

func newOAuthSigner(creds Credentials) *oauthSigner {
	return &oauthSigner{creds: creds, nonce: randomNonce, now: time.Now}
}

// header signs method+baseURL with the given query parameters. The JSON body
// of a v2 request is not part of the signature.
func (s *oauthSigner) header(method, baseURL string, query url.Values) string {
	oauthParams := map[string]string{
		"oauth_consumer_key":     s.creds.APIKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_token":            s.creds.AccessToken,
		"oauth_version":          "1.0",
	}

	var pairs []string
	for k, v := range oauthParams {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
	}
	for k, vs := range query {
		for _, v := range vs {
			pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
		}
	}
	sort.Strings(pairs)

	base := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(strings.Join(pairs, "&"))
	key := percentEncode(s.creds.APISecret) + "&" + percentEncode(s.creds.AccessTokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	oauthParams["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	var authPairs []string
	for k, v := range oauthParams {
		authPairs = append(authPairs, percentEncode(k)+"=\""+percentEncode(v)+"\"")
	}
	sort.Strings(authPairs)

	return "OAuth " + strings.Join(authPairs, ", ")
}

// percentEncode applies RFC 3986 encoding as OAuth 1.0a requires.
func percentEncode(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	return strings.ReplaceAll(e, "%7E", "~")
}

func randomNonce() string {
	b := make([]byte, 32)
	rand.Read(b)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, base64.StdEncoding.EncodeToString(b))
}
