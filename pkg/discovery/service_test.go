package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceDial(t *testing.T) {
	tests := []struct {
		name     string
		svc      Service
		wantHost string
	}{
		{
			name:     "prefers ipv4",
			svc:      Service{Port: 20022, Addresses: []string{"fe80::1", "192.168.1.5"}},
			wantHost: "192.168.1.5",
		},
		{
			name:     "ipv6 only",
			svc:      Service{Port: 20022, Addresses: []string{"fe80::1"}},
			wantHost: "fe80::1",
		},
		{
			name:     "host name fallback",
			svc:      Service{Port: 20022, Host: "kbe-machine.local."},
			wantHost: "kbe-machine.local",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := tt.svc.Dial()
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, 20022, port)
		})
	}
}

func TestServiceUID(t *testing.T) {
	svc := Service{TXT: map[string]string{"uid": "1001"}}
	uid, ok := svc.UID()
	assert.True(t, ok)
	assert.Equal(t, int32(1001), uid)

	svc.TXT["uid"] = "not-a-number"
	_, ok = svc.UID()
	assert.False(t, ok)

	_, ok = (&Service{}).UID()
	assert.False(t, ok)
}

func TestTXTRoundTrip(t *testing.T) {
	records := map[string]string{"uid": "7", "cid": "123", "ver": "2.5.12"}

	txt := EncodeTXT(records)
	assert.Equal(t, []string{"cid=123", "uid=7", "ver=2.5.12"}, txt)
	assert.Equal(t, records, DecodeTXT(txt))
}

func TestDecodeTXT(t *testing.T) {
	got := DecodeTXT([]string{"UID=5", "flag", "", "ver=a=b"})
	assert.Equal(t, map[string]string{"uid": "5", "flag": "", "ver": "a=b"}, got)
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "fe80::1"})
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, got)
}

func TestRemoveAddresses(t *testing.T) {
	got := removeAddresses([]string{"10.0.0.1", "10.0.0.2", "fe80::1"}, []string{"10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, got)
}

func TestEntryToService(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "cluster-a", Service: ServiceType, Domain: Domain},
		HostName:      "kbe-host.local.",
		Port:          20099,
		Text:          []string{"uid=3"},
		AddrIPv4:      []net.IP{net.ParseIP("192.168.0.10")},
		AddrIPv6:      []net.IP{net.ParseIP("fe80::10")},
	}

	svc := entryToService(entry)

	assert.Equal(t, "cluster-a", svc.Instance)
	assert.Equal(t, "kbe-host.local.", svc.Host)
	assert.Equal(t, 20099, svc.Port)
	assert.Equal(t, []string{"192.168.0.10", "fe80::10"}, svc.Addresses)
	assert.Equal(t, "3", svc.TXT["uid"])
}

func TestAggregator(t *testing.T) {
	agg := newAggregator()

	svc, isNew := agg.add(&Service{Instance: "a", Port: 1, Addresses: []string{"10.0.0.1"}, TXT: map[string]string{}})
	require.True(t, isNew)

	again, isNew := agg.add(&Service{Instance: "a", Port: 1, Addresses: []string{"10.0.0.2"}, TXT: map[string]string{"uid": "9"}})
	assert.False(t, isNew)
	assert.Same(t, svc, again)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, svc.Addresses)
	assert.Equal(t, "9", svc.TXT["uid"])

	assert.False(t, agg.remove(&Service{Instance: "a", Addresses: []string{"10.0.0.1"}}))
	assert.Equal(t, []string{"10.0.0.2"}, svc.Addresses)

	assert.True(t, agg.remove(&Service{Instance: "a", Addresses: []string{"10.0.0.2"}}))
	assert.False(t, agg.remove(&Service{Instance: "a"}), "already forgotten")

	_, isNew = agg.add(&Service{Instance: "a", Addresses: []string{"10.0.0.3"}, TXT: map[string]string{}})
	assert.True(t, isNew, "forgotten instance is new again")
}

func TestAnnounceRequiresInstance(t *testing.T) {
	var a Announcer
	assert.Error(t, a.Start(AnnounceInfo{}))
	a.Stop()
}
