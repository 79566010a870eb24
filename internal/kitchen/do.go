package kitchen

import (
	"context"
	"errors"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"
)

// DOClient finds kitchen instances created by the DigitalOcean kitchen driver.
type DOClient struct {
	c *godo.Client
}

func NewDOClient(token string) (*DOClient, error) {
	if token == "" {
		return nil, errors.New("empty DO token")
	}
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)
	return &DOClient{c: godo.NewClient(oauthClient)}, nil
}

// NewDOClientWithBaseURL points the client at another API endpoint.
func NewDOClientWithBaseURL(token string, baseURL string) (*DOClient, error) {
	if token == "" {
		return nil, errors.New("empty DO token")
	}
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	c, err := godo.New(oauth2.NewClient(context.Background(), tokenSource), godo.SetBaseURL(baseURL))
	if err != nil {
		return nil, err
	}
	return &DOClient{c: c}, nil
}

func (c *DOClient) ListDropletsByTag(ctx context.Context, tag string) ([]godo.Droplet, error) {
	var all []godo.Droplet
	opt := &godo.ListOptions{PerPage: 200, Page: 1}
	for {
		droplets, resp, err := c.c.Droplets.ListByTag(ctx, tag, opt)
		if err != nil {
			return nil, err
		}
		all = append(all, droplets...)
		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			break
		}
		opt.Page = page + 1
	}
	return all, nil
}

func DropletPublicIPv4(d godo.Droplet) string {
	if d.Networks == nil {
		return ""
	}
	for _, n := range d.Networks.V4 {
		if n.Type == "public" && n.IPAddress != "" {
			return n.IPAddress
		}
	}
	return ""
}

// Target is one machine to verify.
type Target struct {
	Name   string
	Config Config
}

// ResolveTargets returns the configured host, or one target per droplet
// carrying cfg.DropletTag.
func ResolveTargets(ctx context.Context, cfg Config, do *DOClient) ([]Target, error) {
	if cfg.DropletTag == "" {
		return []Target{{Name: cfg.Hostname, Config: cfg}}, nil
	}
	if do == nil {
		return nil, errors.New("droplet tag set but no DigitalOcean client")
	}
	droplets, err := do.ListDropletsByTag(ctx, cfg.DropletTag)
	if err != nil {
		return nil, err
	}
	var targets []Target
	for _, d := range droplets {
		ip := DropletPublicIPv4(d)
		if ip == "" {
			continue
		}
		targets = append(targets, Target{Name: d.Name, Config: cfg.WithHostname(ip)})
	}
	if len(targets) == 0 {
		return nil, errors.New("no droplets with a public IPv4 found with tag " + cfg.DropletTag)
	}
	return targets, nil
}
