package platform

import (
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ByURL(t *testing.T) {
	r := NewDefaultRegistry(Options{})

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://mangadex.org/title/" + mangaID, want: MangaDexID},
		{url: "https://anilist.co/anime/1", want: AniListID},
		{url: "https://comick.dev/comic/kagurabachi", want: ComickID},
		{url: "https://www.youtube.com/channel/" + channelID, want: YouTubeID},
		{url: "m.youtube.com/channel/" + channelID, want: YouTubeID},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			p, err := r.ByURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Info().ID)
		})
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewDefaultRegistry(Options{})

	for _, u := range []string{"https://example.org/title/x", "", "https://notanilist.co/anime/1"} {
		_, err := r.ByURL(u)
		var uerr *UnsupportedURLError
		assert.ErrorAs(t, err, &uerr, u)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewDefaultRegistry(Options{})

	p, id, err := r.Resolve("https://anilist.co/anime/21/One-Piece")
	require.NoError(t, err)
	assert.Equal(t, AniListID, p.Info().ID)
	assert.Equal(t, "21", id)

	_, _, err = r.Resolve("https://anilist.co/")
	var perr *URLParseError
	assert.ErrorAs(t, err, &perr)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(NewMangaDex(Options{}))
	assert.Error(t, r.Register(NewMangaDex(Options{})))
	assert.Len(t, r.All(), 1)

	p, ok := r.Get(MangaDexID)
	assert.True(t, ok)
	assert.Equal(t, "MangaDex", p.Info().Name)
	_, ok = r.Get("comick")
	assert.False(t, ok)
}

func TestRegistry_Breakers(t *testing.T) {
	states := make(map[string]gobreaker.State)
	for id, b := range NewDefaultRegistry(Options{}).Breakers() {
		states[id] = b.State()
		assert.Equal(t, uint32(0), b.Counts().Requests, id)
	}
	assert.Equal(t, map[string]gobreaker.State{
		MangaDexID: gobreaker.StateClosed,
		AniListID:  gobreaker.StateClosed,
		ComickID:   gobreaker.StateClosed,
		YouTubeID:  gobreaker.StateClosed,
	}, states)
}
