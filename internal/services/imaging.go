package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math/rand"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	avatarSize    = 512
	badgeSize     = 256
	ThumbnailSide = 320
)

var avatarPalette = []string{
	"#F94144", "#F3722C", "#F8961E", "#F9844A", "#90BE6D",
	"#43AA8B", "#4D908E", "#577590", "#277DA1", "#6D597A",
	"#B56576", "#355070",
}

// ImagingService renders initials avatars, project badges and asset
// thumbnails, and stores the first two in object storage.
type ImagingService interface {
	RenderAvatar(first, last, colorHex string) ([]byte, error)
	EnsureUserAvatar(ctx context.Context, user *types.User) error
	RenderBadge(name string, seed uuid.UUID) ([]byte, error)
	EnsureProjectBadge(ctx context.Context, project *types.Project) error
	Thumbnail(raw []byte, maxSide int) ([]byte, error)
}

type imagingService struct {
	log        *logger.Logger
	bucket     gcp.BucketService
	colors     []color.NRGBA
	colorByHex map[string]color.NRGBA
	avatarFace font.Face
	badgeFace  font.Face
}

// NewImagingService loads AVATAR_FONT when set and falls back to the bundled
// Go Bold face. bucket may be nil, in which case renders are not uploaded.
func NewImagingService(log *logger.Logger, bucket gcp.BucketService) (ImagingService, error) {
	serviceLog := log.With("service", "ImagingService")

	fontBytes := gobold.TTF
	if path := envutil.String("AVATAR_FONT", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read avatar font: %w", err)
		}
		fontBytes = raw
		serviceLog.Info("Loaded avatar font", "font", path)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse avatar font: %w", err)
	}

	colorByHex := make(map[string]color.NRGBA, len(avatarPalette))
	colors := make([]color.NRGBA, 0, len(avatarPalette))
	for _, h := range avatarPalette {
		c, err := hexToNRGBA(h)
		if err != nil {
			return nil, fmt.Errorf("palette %s: %w", h, err)
		}
		colorByHex[h] = c
		colors = append(colors, c)
	}

	return &imagingService{
		log:        serviceLog,
		bucket:     bucket,
		colors:     colors,
		colorByHex: colorByHex,
		avatarFace: truetype.NewFace(parsed, &truetype.Options{Size: 206, DPI: 72, Hinting: font.HintingNone}),
		badgeFace:  truetype.NewFace(parsed, &truetype.Options{Size: 120, DPI: 72, Hinting: font.HintingNone}),
	}, nil
}

func (s *imagingService) RenderAvatar(first, last, colorHex string) ([]byte, error) {
	dc := gg.NewContext(avatarSize, avatarSize)
	dc.DrawCircle(avatarSize/2, avatarSize/2, avatarSize/2)
	dc.Clip()
	dc.SetColor(s.pickColor(colorHex))
	dc.DrawRectangle(0, 0, avatarSize, avatarSize)
	dc.Fill()

	dc.SetFontFace(s.avatarFace)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(initials(first, last), avatarSize/2, avatarSize/2, 0.5, 0.35)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

// EnsureUserAvatar assigns a palette color when missing, renders the avatar
// and points the user at a freshly versioned object key.
func (s *imagingService) EnsureUserAvatar(ctx context.Context, user *types.User) error {
	if user == nil {
		return fmt.Errorf("user required")
	}
	if normalizeHex(user.AvatarColor) == "" || !s.knownColor(user.AvatarColor) {
		user.AvatarColor = avatarPalette[rand.Intn(len(avatarPalette))]
	}
	png, err := s.RenderAvatar(user.FirstName, user.LastName, user.AvatarColor)
	if err != nil {
		return err
	}
	if s.bucket == nil {
		return nil
	}
	oldKey := strings.TrimSpace(user.AvatarBucketKey)
	newKey := fmt.Sprintf("user_avatar/%s/%d.png", user.ID, time.Now().UnixNano())
	if err := s.bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryAvatar, newKey, bytes.NewReader(png)); err != nil {
		return fmt.Errorf("upload avatar: %w", err)
	}
	user.AvatarBucketKey = newKey
	user.AvatarURL = s.bucket.GetPublicURL(gcp.BucketCategoryAvatar, newKey)
	if oldKey != "" && oldKey != newKey {
		if err := s.bucket.DeleteFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryAvatar, oldKey); err != nil {
			s.log.Warn("failed to delete old avatar (ignored)", "key", oldKey, "error", err)
		}
	}
	return nil
}

// RenderBadge draws a rounded tile whose color is derived from seed so a
// project keeps the same badge across renames.
func (s *imagingService) RenderBadge(name string, seed uuid.UUID) ([]byte, error) {
	h := fnv.New32a()
	_, _ = h.Write(seed[:])
	bg := s.colors[int(h.Sum32())%len(s.colors)]

	dc := gg.NewContext(badgeSize, badgeSize)
	dc.DrawRoundedRectangle(0, 0, badgeSize, badgeSize, 40)
	dc.SetColor(bg)
	dc.Fill()

	dc.SetFontFace(s.badgeFace)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(badgeLetters(name), badgeSize/2, badgeSize/2, 0.5, 0.35)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode badge: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *imagingService) EnsureProjectBadge(ctx context.Context, project *types.Project) error {
	if project == nil {
		return fmt.Errorf("project required")
	}
	png, err := s.RenderBadge(project.Name, project.ID)
	if err != nil {
		return err
	}
	if s.bucket == nil {
		return nil
	}
	oldKey := strings.TrimSpace(project.BadgeKey)
	key := fmt.Sprintf("project_badge/%s/%d.png", project.ID, time.Now().UnixNano())
	if err := s.bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryAvatar, key, bytes.NewReader(png)); err != nil {
		return fmt.Errorf("upload badge: %w", err)
	}
	project.BadgeKey = key
	project.BadgeURL = s.bucket.GetPublicURL(gcp.BucketCategoryAvatar, key)
	if oldKey != "" && oldKey != key {
		if err := s.bucket.DeleteFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryAvatar, oldKey); err != nil {
			s.log.Warn("failed to delete old badge (ignored)", "key", oldKey, "error", err)
		}
	}
	return nil
}

// Thumbnail scales raw so its longer side is at most maxSide and re-encodes
// it as PNG. Smaller images keep their size.
func (s *imagingService) Thumbnail(raw []byte, maxSide int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if maxSide <= 0 {
		maxSide = ThumbnailSide
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}
	tw, th := w, h
	if w > maxSide || h > maxSide {
		if w >= h {
			tw, th = maxSide, max(1, h*maxSide/w)
		} else {
			tw, th = max(1, w*maxSide/h), maxSide
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	dc := gg.NewContextForRGBA(dst)
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *imagingService) knownColor(h string) bool {
	_, ok := s.colorByHex[normalizeHex(h)]
	return ok
}

func (s *imagingService) pickColor(h string) color.NRGBA {
	if c, ok := s.colorByHex[normalizeHex(h)]; ok {
		return c
	}
	return s.colors[0]
}

func normalizeHex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 7 {
		return ""
	}
	if _, err := hex.DecodeString(s[1:]); err != nil {
		return ""
	}
	return s
}

func hexToNRGBA(s string) (color.NRGBA, error) {
	n := normalizeHex(s)
	if n == "" {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	raw, _ := hex.DecodeString(n[1:])
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xFF}, nil
}

func firstLetter(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r))
}

func initials(first, last string) string {
	f, l := firstLetter(first), firstLetter(last)
	if f == "" {
		f = "?"
	}
	return f + l
}

// badgeLetters takes the first letter of up to two words of name.
func badgeLetters(name string) string {
	words := strings.Fields(name)
	switch len(words) {
	case 0:
		return "#"
	case 1:
		return firstLetter(words[0])
	default:
		return firstLetter(words[0]) + firstLetter(words[1])
	}
}
