package detector

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	tests := []struct {
		name   string
		status int
		body   string
		want   Reason
	}{
		{name: "cloudflare interstitial", status: http.StatusOK, body: "<title>Just a moment...</title>", want: Challenge},
		{name: "browser check", status: http.StatusOK, body: "<p>Checking your browser before accessing</p>", want: Challenge},
		{name: "403 with banner", status: http.StatusForbidden, body: "Cloudflare Ray ID", want: Challenge},
		{name: "plain 404", status: http.StatusNotFound, body: "not found", want: None},
		{name: "empty body", status: http.StatusOK, body: "  ", want: EmptyBody},
		{name: "script shell", status: http.StatusOK, body: `<html><script>var a=1;</script><p>t</p></html>`, want: ScriptShell},
		{name: "spa root", status: http.StatusOK, body: `<div id="__next"></div>` + string(make([]byte, 200)), want: SPAMarker},
		{name: "real content", status: http.StatusOK, body: `{"result": "tai", "session_id": "r1"}`, want: None},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, h.Classify(tt.status, []byte(tt.body)))
		})
	}
}

func TestDefaultThreshold(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	require.Equal(t, 2048, h.BodyLengthThreshold)
	require.Equal(t, EmptyBody, h.Classify(http.StatusOK, nil))
	require.Equal(t, None, h.Classify(http.StatusOK, []byte(`<div class="game-result">7</div>`)))
}

func TestScriptDensityUnclosedTag(t *testing.T) {
	t.Parallel()

	require.True(t, scriptDensityHigh(`<p>x</p><script src="a.js"`))
	require.False(t, scriptDensityHigh(""))
}
