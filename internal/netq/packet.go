// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netq is the NFQUEUE boundary: it decodes a raw IPv4 datagram
// handed up by the kernel into a verdict.PacketView and carries the
// verdict back down as an accept/drop decision. Packet decoding lives
// here rather than in internal/verdict so the matcher never depends on
// gopacket.
package netq

import (
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/ips/internal/verdict"
)

// DecodeIPv4 parses raw as an IPv4 datagram and extracts the fields the
// matcher needs. ok is false for anything that isn't IPv4 (IPv6, ARP,
// malformed); the caller's default for those is to accept the packet
// without evaluating any rule.
func DecodeIPv4(raw []byte) (verdict.PacketView, bool) {
	packet := gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.NoCopy)

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return verdict.PacketView{}, false
	}
	ip := ipLayer.(*layers.IPv4)

	view := verdict.PacketView{
		SrcIP:    ip.SrcIP.String(),
		DstIP:    ip.DstIP.String(),
		Protocol: uint8(ip.Protocol),
		Payload:  ip.Payload,
	}

	if tcp := packet.Layer(layers.LayerTypeTCP); tcp != nil {
		t := tcp.(*layers.TCP)
		view.SrcPort = uint16(t.SrcPort)
		view.DstPort = uint16(t.DstPort)
		view.Payload = t.Payload
	} else if udp := packet.Layer(layers.LayerTypeUDP); udp != nil {
		u := udp.(*layers.UDP)
		view.SrcPort = uint16(u.SrcPort)
		view.DstPort = uint16(u.DstPort)
		view.Payload = u.Payload
	}

	return view, true
}
