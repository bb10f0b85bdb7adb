// Package tagging embeds track metadata and cover art into decoded audio
// files.
package tagging

import (
	"fmt"
	"strconv"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"melt/internal/ncm"
)

// EmbedMP3 writes ID3v2 tags and an optional front cover into path.
func EmbedMP3(path string, meta *ncm.Metadata, img *ncm.Image) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if meta != nil {
		if meta.MusicName != "" {
			tag.SetTitle(meta.MusicName)
		}
		if artists := meta.Artist.Names(); artists != "" {
			tag.SetArtist(artists)
		}
		if meta.Album != "" {
			tag.SetAlbum(meta.Album)
		}
	}
	if img != nil && len(img.Bytes) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    img.MIME,
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     img.Bytes,
		})
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}

// EmbedFLAC writes a vorbis comment block and an optional front cover into
// path. Existing comment fields are preserved; track fields are only added
// when absent.
func EmbedFLAC(path string, meta *ncm.Metadata, img *ncm.Image) error {
	file, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse flac: %w", err)
	}

	if img != nil && len(img.Bytes) > 0 {
		picture, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front cover", img.Bytes, img.MIME)
		if err != nil {
			return fmt.Errorf("build flac picture: %w", err)
		}
		pictureBlock := picture.Marshal()
		file.Meta = append(file.Meta, &pictureBlock)
	}

	var commentBlock *flac.MetaDataBlock
	for _, block := range file.Meta {
		if block.Type == flac.VorbisComment {
			commentBlock = block
			break
		}
	}
	var comments *flacvorbis.MetaDataBlockVorbisComment
	if commentBlock != nil {
		comments, err = flacvorbis.ParseFromMetaDataBlock(*commentBlock)
		if err != nil {
			return fmt.Errorf("parse vorbis comment: %w", err)
		}
	} else {
		comments = flacvorbis.New()
	}

	if meta != nil {
		if err := addIfMissing(comments, flacvorbis.FIELD_TITLE, meta.MusicName); err != nil {
			return err
		}
		if err := addIfMissing(comments, flacvorbis.FIELD_ALBUM, meta.Album); err != nil {
			return err
		}
		if existing, err := comments.Get(flacvorbis.FIELD_ARTIST); err != nil {
			return fmt.Errorf("read vorbis artist: %w", err)
		} else if len(existing) == 0 {
			for _, artist := range meta.Artist {
				if artist.Name == "" {
					continue
				}
				if err := comments.Add(flacvorbis.FIELD_ARTIST, artist.Name); err != nil {
					return fmt.Errorf("add vorbis artist: %w", err)
				}
			}
		}
		if meta.MusicID > 0 {
			if err := addIfMissing(comments, "TRACKID", strconv.FormatInt(meta.MusicID, 10)); err != nil {
				return err
			}
		}
	}

	rendered := comments.Marshal()
	if commentBlock != nil {
		*commentBlock = rendered
	} else {
		file.Meta = append(file.Meta, &rendered)
	}
	if err := file.Save(path); err != nil {
		return fmt.Errorf("save flac: %w", err)
	}
	return nil
}

func addIfMissing(comments *flacvorbis.MetaDataBlockVorbisComment, field, value string) error {
	if value == "" {
		return nil
	}
	existing, err := comments.Get(field)
	if err != nil {
		return fmt.Errorf("read vorbis %s: %w", field, err)
	}
	if len(existing) > 0 {
		return nil
	}
	if err := comments.Add(field, value); err != nil {
		return fmt.Errorf("add vorbis %s: %w", field, err)
	}
	return nil
}
