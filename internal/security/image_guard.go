package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/hitoshi/ticketbox/internal/model"
)

// allowedSchemes は画像URLとして許可するスキーム。
var allowedSchemes = []string{"https"}

// blockedNetworks は画像URLのホストとして許可しないネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// ImageGuard はイベント画像URLの検証を行う。
//
// 静的検証（スキーム・ホスト・IP範囲）に加え、到達確認が有効な場合は
// safeurlのクライアントでHEADリクエストを送り、画像であることを確認する。
// safeurlはDNS解決後のIPも検証するため、DNS再バインディングにも対応する。
type ImageGuard struct {
	client *http.Client
	reach  bool
}

// NewImageGuard はImageGuardを生成する。timeoutが0以下の場合はリモート確認を行わない。
func NewImageGuard(timeout time.Duration) *ImageGuard {
	if timeout <= 0 {
		return &ImageGuard{}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(443).
		Build()

	return &ImageGuard{
		client: safeurl.Client(config).Client,
		reach:  true,
	}
}

// ValidateImageURL は画像URLを検証する。不正な場合はValidationErrorを返す。
func (g *ImageGuard) ValidateImageURL(ctx context.Context, rawURL string) error {
	if err := ValidateURL(rawURL); err != nil {
		return model.NewValidationError("imageUrl", err.Error())
	}
	if !g.reach {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return model.NewValidationError("imageUrl", err.Error())
	}
	req.Header.Set("User-Agent", "Ticketbox/1.0 ImageCheck")

	resp, err := g.client.Do(req)
	if err != nil {
		return model.NewValidationError("imageUrl", fmt.Sprintf("image is not reachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return model.NewValidationError("imageUrl", fmt.Sprintf("image returned status %d", resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return model.NewValidationError("imageUrl", fmt.Sprintf("unexpected content type: %s", ct))
	}
	return nil
}

// ValidateURL はDNS解決を伴わない静的なURL検証を行う。
// httpsの絶対URLで、ホストがプライベート・ループバック・リンクローカルでないことを確認する。
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
