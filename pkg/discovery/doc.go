// Package discovery finds KBEngine logger services over mDNS/DNS-SD.
//
// The logger does not advertise itself; deployments that want zero-config
// watchers run an announcer next to it (see Announcer and the
// "kbelog discover announce" command).
//
// # Service Type (_kbelogger._tcp)
//
// Instance name: the machine or cluster name chosen by the announcer.
// Port: the logger's TCP port.
// TXT records (all optional):
//   - cid: logger component id
//   - uid: KBEngine user id of the cluster
//   - ver: KBEngine version string
//
// Browsing aggregates answers per instance: addresses seen on several
// interfaces are merged into one Service, and a goodbye packet removes the
// addresses it names.
package discovery
