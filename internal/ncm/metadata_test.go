package ncm

import (
	"encoding/base64"
	"errors"
	"testing"
)

// buildMetaBox produces the whitened-then-unwhitened metadata box content the
// reader hands to decodeMetadata: marker + base64(AES-ECB(music: + json)).
func buildMetaBox(t *testing.T, jsonDoc string) []byte {
	t.Helper()
	ciphertext := encryptECB(t, append([]byte("music:"), jsonDoc...), MetaKey)
	encoded := base64.StdEncoding.EncodeToString(ciphertext)
	return append(append([]byte(nil), metaMarker...), encoded...)
}

func TestDecodeMetadata(t *testing.T) {
	doc := `{
		"format": "flac",
		"musicId": 112233,
		"musicName": "Night Drive",
		"artist": [["First Artist", 100], ["Second Artist", "200"]],
		"albumId": 4455,
		"album": "City Lights",
		"albumPic": "http://p4.music.example.net/cover.jpg",
		"bitrate": 963000,
		"duration": 201000,
		"alias": ["夜间行车"],
		"transNames": [],
		"flag": 4,
		"volumeDelta": -1.25,
		"unknownField": {"ignored": true}
	}`
	meta, err := decodeMetadata(buildMetaBox(t, doc))
	if err != nil {
		t.Fatalf("decodeMetadata: %v", err)
	}
	if meta.Format != "flac" || meta.MusicID != 112233 || meta.MusicName != "Night Drive" {
		t.Fatalf("unexpected core fields: %+v", meta)
	}
	if meta.Album != "City Lights" || meta.AlbumID != 4455 {
		t.Fatalf("unexpected album fields: %+v", meta)
	}
	if got := meta.Artist.Names(); got != "First Artist, Second Artist" {
		t.Fatalf("Names() = %q", got)
	}
	if meta.Artist[0].ID != 100 {
		t.Fatalf("numeric artist id = %d, want 100", meta.Artist[0].ID)
	}
	if meta.AlbumPic != "https://p4.music.example.net/cover.jpg" {
		t.Fatalf("albumPic scheme not upgraded: %q", meta.AlbumPic)
	}
	if meta.VolumeDelta != -1.25 {
		t.Fatalf("volumeDelta = %v", meta.VolumeDelta)
	}
}

func TestDecodeMetadataMissingOptionalFields(t *testing.T) {
	meta, err := decodeMetadata(buildMetaBox(t, `{"musicName":"Bare"}`))
	if err != nil {
		t.Fatalf("decodeMetadata: %v", err)
	}
	if meta.MusicName != "Bare" {
		t.Fatalf("musicName = %q", meta.MusicName)
	}
	if meta.Album != "" || meta.AlbumPic != "" || len(meta.Artist) != 0 {
		t.Fatalf("expected zero values for absent fields: %+v", meta)
	}
}

func TestDecodeMetadataFailures(t *testing.T) {
	valid := buildMetaBox(t, `{"musicName":"x"}`)

	cases := map[string][]byte{
		"missing marker": valid[1:],
		"invalid base64": append(append([]byte(nil), metaMarker...), "!!!not-base64!!!"...),
		"broken json":    buildMetaBox(t, `{"musicName":`),
	}
	for name, raw := range cases {
		if _, err := decodeMetadata(raw); !errors.Is(err, ErrMetadataDecode) {
			t.Errorf("%s: got %v, want ErrMetadataDecode", name, err)
		}
	}
}
