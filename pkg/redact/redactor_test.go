package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

func TestRedactSensitiveKeys(t *testing.T) {
	r := New(Options{})
	in := props.Object(
		props.F("user_password", props.String("hunter2hunter2")),
		props.F("API-Key", props.String("abcd1234efgh5678")),
		props.F("remember", props.Bool(true)),
		props.F("session_token", props.Number(12345)),
		props.F("username", props.String("alice")),
	)

	out := r.Redact(in, " 10.0.0.1 ", "")
	pw, _ := out.Properties.Get("user_password")
	assert.Equal(t, "hunt******ter2", pw.Str)
	key, _ := out.Properties.Get("API-Key")
	assert.Equal(t, "abcd********5678", key.Str)
	remember, _ := out.Properties.Get("remember")
	assert.Equal(t, props.KindBool, remember.Kind)
	assert.True(t, remember.Bool)
	token, _ := out.Properties.Get("session_token")
	assert.Equal(t, MaskToken, token.Str)
	user, _ := out.Properties.Get("username")
	assert.Equal(t, "alice", user.Str)
	assert.Equal(t, "10.0.0.1", out.IPAddress)
}

func TestRedactSensitiveSubtree(t *testing.T) {
	r := New(Options{})
	in := props.Object(props.F("credentials", props.Object(
		props.F("user", props.String("alice")),
		props.F("mfa", props.Bool(false)),
	)))
	out := r.Redact(in, "", "")
	creds, _ := out.Properties.Get("credentials")
	user, _ := creds.Get("user")
	assert.Equal(t, "*****", user.Str)
	mfa, _ := creds.Get("mfa")
	assert.Equal(t, MaskToken, mfa.Str)
}

func TestRedactContentPatterns(t *testing.T) {
	r := New(Options{})
	in := props.Object(
		props.F("note", props.String("contact john.doe@example.com now")),
		props.F("card", props.String("4111 1111 1111 1111")),
		props.F("origin", props.String("192.168.100.200")),
		props.F("account", props.Number(4111111111111111)),
		props.F("items", props.List(props.String("ok"), props.String("a@b.io"))),
	)
	out := r.Redact(in, "", "Mozilla/5.0 (bob@corp.example)")

	note, _ := out.Properties.Get("note")
	assert.NotContains(t, note.Str, "john.doe@example.com")
	assert.True(t, strings.HasPrefix(note.Str, "contact john"))
	card, _ := out.Properties.Get("card")
	assert.Equal(t, "4111***********1111", card.Str)
	origin, _ := out.Properties.Get("origin")
	assert.Equal(t, "192.*******.200", origin.Str)
	account, _ := out.Properties.Get("account")
	assert.Equal(t, MaskToken, account.Str)
	items, _ := out.Properties.Get("items")
	assert.Equal(t, "ok", items.Items[0].Str)
	assert.Equal(t, "******", items.Items[1].Str)
	assert.NotContains(t, out.UserAgent, "bob@corp.example")
}

func TestRedactIsIdempotent(t *testing.T) {
	r := New(Options{})
	in := props.Object(
		props.F("password", props.String("correct-horse-battery")),
		props.F("pin_secret", props.String("1234")),
		props.F("email", props.String("alice@example.com")),
		props.F("ip", props.String("10.0.0.1")),
		props.F("flag", props.Bool(true)),
		props.F("token", props.Bool(true)),
		props.F("nested", props.Object(props.F("apikey", props.Number(7)))),
		props.F("plain", props.String("visible")),
	)
	once := r.Redact(in, "", "")
	twice := r.Redact(once.Properties, "", "")
	require.True(t, once.Properties.Equal(twice.Properties))
	plain, _ := twice.Properties.Get("plain")
	assert.Equal(t, "visible", plain.Str)
}

func TestRedactExtraKeysAndOptions(t *testing.T) {
	r := New(Options{ExtraKeys: []string{"NIK"}, KeepChars: 2, MaskChar: '#'})
	assert.True(t, r.IsSensitiveKey("student_nik"))
	assert.False(t, r.IsSensitiveKey("author_id"))

	out := r.Redact(props.Object(props.F("nik", props.String("3201012345"))), "", "")
	nik, _ := out.Properties.Get("nik")
	assert.Equal(t, "32######45", nik.Str)
}

func TestSensitiveContentDetection(t *testing.T) {
	assert.True(t, containsSensitiveContent("mail me at a@b.co"))
	assert.True(t, containsSensitiveContent("from 8.8.8.8"))
	assert.False(t, containsSensitiveContent("deleted 3 users"))
}

func TestMaskText(t *testing.T) {
	r := New(Options{})
	assert.Equal(t, "deleted 3 users", r.MaskText("deleted 3 users"))
	assert.NotContains(t, r.MaskText("reset sent to alice@example.com"), "alice@example.com")
	masked := r.MaskText("reset sent to alice@example.com")
	assert.Equal(t, masked, r.MaskText(masked))
}

func TestRedactKeepsSourceIPButMasksUserAgent(t *testing.T) {
	r := New(Options{})

	out := r.Redact(props.Null(), "  203.0.113.9 ", "curl/8.4 via 198.51.100.7")
	assert.Equal(t, "203.0.113.9", out.IPAddress)
	assert.NotContains(t, out.UserAgent, "198.51.100.7")
	assert.True(t, strings.HasPrefix(out.UserAgent, "curl/8.4 via "))

	clean := r.Redact(props.Null(), "", "Mozilla/5.0 (X11; Linux x86_64)")
	assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", clean.UserAgent)
}
