// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/cap/openid/internal/kvform"
	"github.com/hashicorp/go-uuid"
	"github.com/stretchr/testify/require"
)

// TestProvider is a local OpenID 1.1 identity provider which makes writing
// relying-party tests much easier. It serves identity pages carrying the
// openid.server (and optionally openid.delegate) link tags, performs real
// DH-SHA1 associate exchanges, answers check_authentication, and can sign
// callback queries with any association it has handed out.
type TestProvider struct {
	httpServer *httptest.Server

	mu               sync.Mutex
	secrets          map[string][]byte
	delegate         string
	identityStatus   int
	omitServerLink   bool
	associateStatus  int
	associateError   string
	assocLifetime    int
	checkAuthValid   *bool
	invalidateHandle string
	lastAssociate    url.Values
	handleCount      int

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider. The server is stopped
// via t.Cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	p := &TestProvider{
		t:              t,
		secrets:        map[string][]byte{},
		identityStatus: http.StatusOK,
		assocLifetime:  3600,
	}
	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)
	return p
}

// Endpoint returns the provider's OpenID endpoint URL.
func (p *TestProvider) Endpoint() string { return p.httpServer.URL + "/openid" }

// IdentityURL returns a claimed identity URL served by the provider.
func (p *TestProvider) IdentityURL() string { return p.httpServer.URL + "/id/alice" }

// SetDelegate makes identity pages advertise an openid.delegate link.
func (p *TestProvider) SetDelegate(delegate string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = delegate
}

// SetIdentityStatus overrides the status identity pages are served with.
func (p *TestProvider) SetIdentityStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identityStatus = status
}

// OmitServerLink serves identity pages without the openid.server link tag.
func (p *TestProvider) OmitServerLink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitServerLink = true
}

// SetAssociateError makes the associate endpoint reject requests with an
// HTTP 400 KV error body.
func (p *TestProvider) SetAssociateError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.associateStatus = http.StatusBadRequest
	p.associateError = msg
}

// SetAssocLifetime overrides the expires_in granted to new associations, in
// seconds.
func (p *TestProvider) SetAssocLifetime(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assocLifetime = seconds
}

// SetCheckAuthResult forces the check_authentication answer instead of
// actually re-verifying the forwarded signature.
func (p *TestProvider) SetCheckAuthResult(valid bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkAuthValid = &valid
}

// SetInvalidateHandle makes check_authentication responses carry an
// invalidate_handle field.
func (p *TestProvider) SetInvalidateHandle(handle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidateHandle = handle
}

// LastAssociateRequest returns the form of the most recent associate
// request, for asserting on the fields the consumer sent.
func (p *TestProvider) LastAssociateRequest() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAssociate
}

// NewStatelessHandle creates an association the relying party has never
// negotiated, for exercising the check_authentication fallback.
func (p *TestProvider) NewStatelessHandle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newHandleLocked()
}

func (p *TestProvider) newHandleLocked() string {
	p.handleCount++
	handle := fmt.Sprintf("{test}{%d}", p.handleCount)
	secret, err := uuid.GenerateRandomBytes(20)
	require.NoError(p.t, err)
	p.secrets[handle] = secret
	return handle
}

// SignResponse completes an id_res callback query: it fills in openid.mode,
// openid.signed and openid.sig using the secret held for the query's
// assoc_handle. The signed list covers mode, identity and return_to.
func (p *TestProvider) SignResponse(q url.Values) url.Values {
	p.t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	secret, ok := p.secrets[q.Get("openid.assoc_handle")]
	require.True(p.t, ok, "no secret for handle %q", q.Get("openid.assoc_handle"))

	q.Set("openid.mode", "id_res")
	signed := []string{"mode", "identity", "return_to"}
	q.Set("openid.signed", strings.Join(signed, ","))

	args := make(map[string]string, len(q))
	for k := range q {
		args[k] = q.Get(k)
	}
	assoc := &Association{Handle: q.Get("openid.assoc_handle"), Secret: secret, Type: AssocTypeHMACSHA1}
	sig, err := assoc.Sign(signed, args)
	require.NoError(p.t, err)
	q.Set("openid.sig", sig)
	return q
}

// ServeHTTP implements the provider endpoints: identity pages under /id/ and
// the OpenID endpoint at /openid.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch {
	case strings.HasPrefix(req.URL.Path, "/id/"):
		p.serveIdentity(w)
	case req.URL.Path == "/openid":
		if err := req.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.PostForm.Get("openid.mode") {
		case "associate":
			p.serveAssociate(w, req.PostForm)
		case "check_authentication":
			p.serveCheckAuth(w, req.PostForm)
		default:
			http.Error(w, "unsupported openid.mode", http.StatusBadRequest)
		}
	default:
		http.NotFound(w, req)
	}
}

func (p *TestProvider) serveIdentity(w http.ResponseWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identityStatus != http.StatusOK {
		w.WriteHeader(p.identityStatus)
		return
	}
	var links strings.Builder
	if !p.omitServerLink {
		fmt.Fprintf(&links, "<link rel=%q href=%q>\n", "openid.server", p.Endpoint())
	}
	if p.delegate != "" {
		fmt.Fprintf(&links, "<link rel=%q href=%q>\n", "openid.delegate", p.delegate)
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, "<html><head>\n%s</head><body>alice</body></html>", links.String())
}

func (p *TestProvider) serveAssociate(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAssociate = form

	if p.associateStatus != 0 {
		w.WriteHeader(p.associateStatus)
		w.Write(kvform.Marshal([]string{"error"}, map[string]string{"error": p.associateError}))
		return
	}

	modulus, generator := defaultDHModulus, defaultDHGenerator
	if v := form.Get("openid.dh_modulus"); v != "" {
		var err error
		modulus, err = base64ToInt(v)
		require.NoError(p.t, err)
	}
	if v := form.Get("openid.dh_gen"); v != "" {
		var err error
		generator, err = base64ToInt(v)
		require.NoError(p.t, err)
	}
	consumerPublic, err := base64ToInt(form.Get("openid.dh_consumer_public"))
	require.NoError(p.t, err)

	dh, err := NewDiffieHellmanWith(modulus, generator)
	require.NoError(p.t, err)
	handle := p.newHandleLocked()
	// XorSecret is its own inverse, so encrypting the MAC key here mirrors
	// the consumer's decryption of enc_mac_key.
	encMACKey, err := dh.XorSecret(consumerPublic, p.secrets[handle])
	require.NoError(p.t, err)

	keys := []string{"assoc_type", "assoc_handle", "session_type", "dh_server_public", "enc_mac_key", "expires_in"}
	w.Write(kvform.Marshal(keys, map[string]string{
		"assoc_type":       AssocTypeHMACSHA1,
		"assoc_handle":     handle,
		"session_type":     sessionTypeDHSHA1,
		"dh_server_public": intToBase64(dh.Public()),
		"enc_mac_key":      base64.StdEncoding.EncodeToString(encMACKey),
		"expires_in":       fmt.Sprintf("%d", p.assocLifetime),
	}))
}

func (p *TestProvider) serveCheckAuth(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	defer p.mu.Unlock()

	valid := false
	switch {
	case p.checkAuthValid != nil:
		valid = *p.checkAuthValid
	default:
		secret, ok := p.secrets[form.Get("openid.assoc_handle")]
		if ok {
			args := make(map[string]string, len(form))
			for k := range form {
				args[k] = form.Get(k)
			}
			// the signature being rechecked was made over mode=id_res
			args["openid.mode"] = "id_res"
			assoc := &Association{Handle: form.Get("openid.assoc_handle"), Secret: secret, Type: AssocTypeHMACSHA1}
			sig, err := assoc.Sign(strings.Split(form.Get("openid.signed"), ","), args)
			require.NoError(p.t, err)
			valid = sig == form.Get("openid.sig")
		}
	}

	keys := []string{"is_valid"}
	values := map[string]string{"is_valid": fmt.Sprintf("%t", valid)}
	if valid && p.invalidateHandle != "" {
		keys = append(keys, "invalidate_handle")
		values["invalidate_handle"] = p.invalidateHandle
	}
	w.Write(kvform.Marshal(keys, values))
}
