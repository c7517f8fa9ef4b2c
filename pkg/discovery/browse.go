package discovery

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser looks for logger services.
type Browser struct {
	// Interface restricts browsing to one network interface. Empty means all.
	Interface string

	// Logger receives debug output (default: slog.Default()).
	Logger *slog.Logger
}

// Browse emits each logger instance once, when it is first seen. Later
// answers for the same instance only update its address list. The channel
// is closed when ctx is done.
func (b *Browser) Browse(ctx context.Context) (<-chan *Service, error) {
	out := make(chan *Service)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		agg := newAggregator()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, isNew := agg.add(entryToService(entry))
				if !isNew {
					continue
				}
				b.logger().Debug("logger discovered", "instance", svc.Instance, "port", svc.Port)
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if agg.remove(entryToService(entry)) {
					b.logger().Debug("logger gone", "instance", entry.Instance)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...); err != nil {
			b.logger().Warn("mdns browse failed", "error", err)
		}
	}()

	return out, nil
}

// FindFirst returns the first logger seen within timeout.
func (b *Browser) FindFirst(ctx context.Context, timeout time.Duration) (*Service, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	services, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	svc, ok := <-services
	if !ok {
		return nil, ErrNotFound
	}
	return svc, nil
}

// FindAll collects every logger seen within timeout.
func (b *Browser) FindAll(ctx context.Context, timeout time.Duration) ([]*Service, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	services, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var all []*Service
	for svc := range services {
		all = append(all, svc)
	}
	return all, nil
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.Interface != "" {
		iface, err := net.InterfaceByName(b.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger().Warn("unknown interface, browsing all", "interface", b.Interface, "error", err)
		}
	}
	return opts
}

func (b *Browser) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// entryToService converts a zeroconf entry.
func entryToService(entry *zeroconf.ServiceEntry) *Service {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return &Service{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
		TXT:       DecodeTXT(entry.Text),
	}
}

// aggregator tracks services by instance name.
type aggregator struct {
	services map[string]*Service
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*Service)}
}

// add records svc and reports whether the instance is new. For a known
// instance the stored service is updated and returned.
func (a *aggregator) add(svc *Service) (*Service, bool) {
	existing, found := a.services[svc.Instance]
	if !found {
		a.services[svc.Instance] = svc
		return svc, true
	}
	existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
	if svc.Port != 0 {
		existing.Port = svc.Port
	}
	for k, v := range svc.TXT {
		existing.TXT[k] = v
	}
	return existing, false
}

// remove drops the addresses of svc and forgets the instance once none
// remain. It reports whether the instance was forgotten.
func (a *aggregator) remove(svc *Service) bool {
	existing, found := a.services[svc.Instance]
	if !found {
		return false
	}
	existing.Addresses = removeAddresses(existing.Addresses, svc.Addresses)
	if len(existing.Addresses) > 0 && len(svc.Addresses) > 0 {
		return false
	}
	delete(a.services, svc.Instance)
	return true
}
