package tilecache

import (
	"crypto/sha256"
	"encoding/hex"
	"image"

	"github.com/disintegration/imaging"
)

// Fingerprint returns a deterministic content hash of an image's pixel
// data. Identical pixel content always produces the same fingerprint,
// regardless of the image's position on the page or the run that
// produced it; this is the cache key.
func Fingerprint(img image.Image) string {
	var pix []byte
	switch v := img.(type) {
	case *image.NRGBA:
		pix = v.Pix
	case *image.RGBA:
		pix = v.Pix
	case *image.Gray:
		pix = v.Pix
	default:
		// Normalize exotic formats so the hash depends on pixels only.
		pix = imaging.Clone(img).Pix
	}
	sum := sha256.Sum256(pix)
	return hex.EncodeToString(sum[:])
}
