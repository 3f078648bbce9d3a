package main

import (
	"Go2Mgen/pkg/pcap"
	"flag"
	"log"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	flows := flag.Int("flows", 4, "Number of generator flows")
	size := flag.Int("size", 512, "Generator message size")
	group := flag.String("group", "224.1.2.1", "Destination address of every flow")
	port := flag.Int("port", 5001, "Destination port of every flow")
	noise := flag.Float64("noise", 0.05, "Fraction of UDP datagrams without a generator header")
	flag.Parse()

	dst, err := netip.ParseAddr(*group)
	if err != nil || !dst.Is4() {
		log.Fatalf("Invalid IPv4 group %q", *group)
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	log.Printf("Generating %d packets over %d flows into %s...", *packetCount, *flows, *outputFile)

	seq := make([]uint32, *flows)
	now := time.Now()
	for i := 0; i < *packetCount; i++ {
		if (i+1)%100000 == 0 {
			log.Printf("Generated %d packets...", i+1)
		}

		flowIdx := rand.IntN(*flows)
		srcIP := net.IP{10, 0, 0, byte(flowIdx + 1)}
		rx := now.Add(time.Duration(i) * time.Millisecond)

		var payload []byte
		if rand.Float64() < *noise {
			payload = make([]byte, rand.IntN(200)+8)
			for j := range payload {
				payload[j] = byte(rand.UintN(256))
			}
		} else {
			seq[flowIdx]++
			msg := &pcap.Message{
				Size:     uint16(*size),
				Version:  pcap.Version,
				FlowID:   uint32(flowIdx + 1),
				Sequence: seq[flowIdx],
				TxTime:   rx.Add(-time.Duration(rand.IntN(5000)) * time.Microsecond),
				DstAddr:  dst,
				DstPort:  uint16(*port),
			}
			payload = msg.Encode()
		}

		ethLayer := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x01, 0x00, 0x5e, 0x01, 0x02, 0x01},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ipLayer := &layers.IPv4{
			SrcIP:    srcIP,
			DstIP:    net.IP(dst.AsSlice()),
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
		}
		udpLayer := &layers.UDP{
			SrcPort: layers.UDPPort(5000 + flowIdx),
			DstPort: layers.UDPPort(*port),
		}
		udpLayer.SetNetworkLayerForChecksum(ipLayer)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, udpLayer, gopacket.Payload(payload)); err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     rx,
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}
