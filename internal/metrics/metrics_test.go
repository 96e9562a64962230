package metrics

import "testing"

func TestSanitizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/votes", "/api/votes"},
		{"/api/votes/batch", "/api/votes/batch"},
		{"/api/votes/limits", "/api/votes/limits"},
		{"/api/votes/6f1c", "/api/votes/:voteId"},
		{"/api/shows/abc/stream", "/api/shows/:showId/stream"},
		{"/api/setlists/s-1/votes", "/api/setlists/:setlistId/votes"},
		{"/api/users/u1/stats", "/api/users/:userId/stats"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeEndpoint(tt.in); got != tt.want {
				t.Errorf("SanitizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
