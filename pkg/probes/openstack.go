// Package probes builds the service-specific check bodies. Each constructor
// validates its arguments once and returns a closure performing a single
// authenticated API call; the harness owns timing, status mapping, and
// output.
package probes

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/images"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/orchestration/v1/stacks"

	"github.com/osops/oschecks/pkg/config"
	"github.com/osops/oschecks/pkg/types/check"
)

// authenticate builds a provider client bound to ctx and obtains a token.
// Authentication happens inside the probe body so it counts against the
// check's time bound, like the service call itself.
func authenticate(ctx context.Context, cfg config.Config) (*gophercloud.ProviderClient, error) {
	provider, err := openstack.NewClient(cfg.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("parsing auth URL: %w", err)
	}
	provider.Context = ctx

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACert)
		}
		provider.HTTPClient = http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool},
			},
		}
	}

	err = openstack.Authenticate(provider, gophercloud.AuthOptions{
		IdentityEndpoint: cfg.AuthURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		TenantName:       cfg.Project(),
		DomainName:       cfg.DomainName,
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func endpointOpts(cfg config.Config) gophercloud.EndpointOpts {
	return gophercloud.EndpointOpts{Region: cfg.RegionName}
}

// statusCodeError matches the gophercloud response errors without naming
// each ErrDefaultNNN type.
type statusCodeError interface {
	GetStatusCode() int
}

// asServiceFailure converts an API error response into a ServiceFailure
// outcome. The service answered, just not happily; transport errors stay
// plain errors so the harness reports them as UNKNOWN instead.
func asServiceFailure(err error) (check.Outcome, bool) {
	var codeErr statusCodeError
	if errors.As(err, &codeErr) {
		return check.Failed("service returned status %d", codeErr.GetStatusCode()), true
	}
	return check.Outcome{}, false
}

// NewIdentityProbe checks that the identity service issues a token.
func NewIdentityProbe(cfg config.Config) (check.Probe, error) {
	return func(ctx context.Context) (check.Outcome, error) {
		provider, err := authenticate(ctx, cfg)
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		if provider.TokenID == "" {
			return check.Failed("authentication succeeded but no token was issued"), nil
		}
		return check.OK("token issued"), nil
	}, nil
}

// NewComputeProbe counts servers visible to the configured project.
func NewComputeProbe(cfg config.Config) (check.Probe, error) {
	return func(ctx context.Context) (check.Outcome, error) {
		provider, err := authenticate(ctx, cfg)
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		client, err := openstack.NewComputeV2(provider, endpointOpts(cfg))
		if err != nil {
			return check.Outcome{}, fmt.Errorf("locating compute endpoint: %w", err)
		}
		pages, err := servers.List(client, servers.ListOpts{}).AllPages()
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		all, err := servers.ExtractServers(pages)
		if err != nil {
			return check.Outcome{}, fmt.Errorf("decoding server list: %w", err)
		}
		return check.Measure(float64(len(all)), "", "%d servers", len(all)), nil
	}, nil
}

// NewVolumeProbe counts block storage volumes.
func NewVolumeProbe(cfg config.Config) (check.Probe, error) {
	return func(ctx context.Context) (check.Outcome, error) {
		provider, err := authenticate(ctx, cfg)
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		client, err := openstack.NewBlockStorageV3(provider, endpointOpts(cfg))
		if err != nil {
			return check.Outcome{}, fmt.Errorf("locating block storage endpoint: %w", err)
		}
		pages, err := volumes.List(client, volumes.ListOpts{}).AllPages()
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		all, err := volumes.ExtractVolumes(pages)
		if err != nil {
			return check.Outcome{}, fmt.Errorf("decoding volume list: %w", err)
		}
		errored := 0
		for _, v := range all {
			if v.Status == "error" {
				errored++
			}
		}
		if errored > 0 {
			return check.Failed("%d of %d volumes in error state", errored, len(all)), nil
		}
		return check.Measure(float64(len(all)), "", "%d volumes", len(all)), nil
	}, nil
}

// NewImageProbe counts images known to the image service.
func NewImageProbe(cfg config.Config) (check.Probe, error) {
	return func(ctx context.Context) (check.Outcome, error) {
		provider, err := authenticate(ctx, cfg)
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		client, err := openstack.NewImageServiceV2(provider, endpointOpts(cfg))
		if err != nil {
			return check.Outcome{}, fmt.Errorf("locating image endpoint: %w", err)
		}
		pages, err := images.List(client, images.ListOpts{}).AllPages()
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		all, err := images.ExtractImages(pages)
		if err != nil {
			return check.Outcome{}, fmt.Errorf("decoding image list: %w", err)
		}
		if len(all) == 0 {
			return check.Failed("image service returned an empty image list"), nil
		}
		return check.Measure(float64(len(all)), "", "%d images", len(all)), nil
	}, nil
}

// NewOrchestrationProbe lists stacks and reports their count; a stack stuck
// in a failed state is a service-level failure, the way a *_FAILED status
// fails the original heat check.
func NewOrchestrationProbe(cfg config.Config) (check.Probe, error) {
	return func(ctx context.Context) (check.Outcome, error) {
		provider, err := authenticate(ctx, cfg)
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		client, err := openstack.NewOrchestrationV1(provider, endpointOpts(cfg))
		if err != nil {
			return check.Outcome{}, fmt.Errorf("locating orchestration endpoint: %w", err)
		}
		pages, err := stacks.List(client, stacks.ListOpts{}).AllPages()
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		all, err := stacks.ExtractStacks(pages)
		if err != nil {
			return check.Outcome{}, fmt.Errorf("decoding stack list: %w", err)
		}
		if failed := failedStacks(all); failed > 0 {
			return check.Failed("%d of %d stacks in failed state", failed, len(all)), nil
		}
		return check.Measure(float64(len(all)), "", "%d stacks", len(all)), nil
	}, nil
}

// failedStacks counts stacks whose last operation failed.
func failedStacks(all []stacks.ListedStack) int {
	n := 0
	for _, s := range all {
		if strings.HasSuffix(s.Status, "_FAILED") {
			n++
		}
	}
	return n
}

// NewNetworkProbe counts networks visible to the configured project.
func NewNetworkProbe(cfg config.Config) (check.Probe, error) {
	return func(ctx context.Context) (check.Outcome, error) {
		provider, err := authenticate(ctx, cfg)
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		client, err := openstack.NewNetworkV2(provider, endpointOpts(cfg))
		if err != nil {
			return check.Outcome{}, fmt.Errorf("locating network endpoint: %w", err)
		}
		pages, err := networks.List(client, networks.ListOpts{}).AllPages()
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		all, err := networks.ExtractNetworks(pages)
		if err != nil {
			return check.Outcome{}, fmt.Errorf("decoding network list: %w", err)
		}
		return check.Measure(float64(len(all)), "", "%d networks", len(all)), nil
	}, nil
}
