package ncm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// metaMarker precedes the base64 payload inside the whitened metadata box.
var metaMarker = []byte("163 key(Don't modify):")

// metaJSONPrefix precedes the JSON document inside the decrypted payload.
var metaJSONPrefix = []byte("music:")

// Artist is a single name/id pair from the metadata artist list.
type Artist struct {
	Name string
	ID   int64
}

// ArtistList decodes the NCM artist encoding: a JSON array of [name, id]
// pairs, where id may arrive as a number or a string.
type ArtistList []Artist

func (l *ArtistList) UnmarshalJSON(data []byte) error {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	out := make(ArtistList, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) == 0 {
			continue
		}
		var artist Artist
		if err := json.Unmarshal(pair[0], &artist.Name); err != nil {
			return err
		}
		if len(pair) > 1 {
			var id json.Number
			if err := json.Unmarshal(pair[1], &id); err == nil {
				artist.ID, _ = id.Int64()
			}
		}
		out = append(out, artist)
	}
	*l = out
	return nil
}

// MarshalJSON re-encodes the list in the container's [name, id] pair form so
// stored metadata round-trips.
func (l ArtistList) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, len(l))
	for i, artist := range l {
		pairs[i] = [2]any{artist.Name, artist.ID}
	}
	return json.Marshal(pairs)
}

// Names returns the artist names joined for display and tagging.
func (l ArtistList) Names() string {
	names := make([]string, 0, len(l))
	for _, a := range l {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// Metadata is the structured tag record embedded in a container. Unknown
// fields in the source document are ignored; missing optional fields stay at
// their zero values.
type Metadata struct {
	Format      string     `json:"format"`
	MusicID     int64      `json:"musicId"`
	MusicName   string     `json:"musicName"`
	Artist      ArtistList `json:"artist"`
	AlbumID     int64      `json:"albumId"`
	Album       string     `json:"album"`
	AlbumPic    string     `json:"albumPic"`
	Bitrate     int        `json:"bitrate"`
	Duration    int        `json:"duration"`
	Alias       []string   `json:"alias"`
	TransNames  []string   `json:"transNames"`
	Flag        int        `json:"flag"`
	Gain        float64    `json:"gain"`
	VolumeDelta float64    `json:"volumeDelta"`
}

// decodeMetadata turns the whitened metadata box bytes into a Metadata
// record: strip the fixed marker, base64-decode, AES-ECB decrypt under
// MetaKey, strip the JSON prefix, and parse. All failures wrap
// ErrMetadataDecode so callers can degrade to audio-only output.
func decodeMetadata(raw []byte) (*Metadata, error) {
	if !bytes.HasPrefix(raw, metaMarker) {
		return nil, fmt.Errorf("%w: missing %q marker", ErrMetadataDecode, metaMarker)
	}
	encoded := raw[len(metaMarker):]

	ciphertext, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMetadataDecode, err)
	}

	plain, err := decryptECB(ciphertext, MetaKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataDecode, err)
	}
	if !bytes.HasPrefix(plain, metaJSONPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMetadataDecode, metaJSONPrefix)
	}

	var meta Metadata
	decoder := json.NewDecoder(bytes.NewReader(plain[len(metaJSONPrefix):]))
	decoder.UseNumber()
	if err := decoder.Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrMetadataDecode, err)
	}

	// Album art URLs in the wild still carry the plain-HTTP scheme.
	if strings.HasPrefix(meta.AlbumPic, "http:") {
		meta.AlbumPic = "https:" + strings.TrimPrefix(meta.AlbumPic, "http:")
	}
	return &meta, nil
}
