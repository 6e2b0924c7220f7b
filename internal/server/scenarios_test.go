// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package server_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/sync/errgroup"

	"github.com/holomush/stompd/internal/broker"
	"github.com/holomush/stompd/internal/client"
	"github.com/holomush/stompd/internal/server"
	"github.com/holomush/stompd/internal/stomp"
)

// testBroker is a running broker with fast background loops.
type testBroker struct {
	broker *broker.Broker
	server *server.Server
	cancel context.CancelFunc
	group  *errgroup.Group
}

func startBroker() *testBroker {
	ctx, cancel := context.WithCancel(context.Background())
	b := broker.New(broker.WithPolicy(broker.Policy{
		MaxAttempts:       3,
		RedeliveryTimeout: 20 * time.Millisecond,
		DistributorPeriod: 5 * time.Millisecond,
		CollectorPeriod:   5 * time.Millisecond,
	}))
	srv := server.NewServer("127.0.0.1:0", b)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return b.RunDistributor(gctx) })
	g.Go(func() error { return b.RunCollector(gctx) })

	Eventually(srv.Ready).Should(BeTrue())
	return &testBroker{broker: b, server: srv, cancel: cancel, group: g}
}

func (tb *testBroker) stop() {
	tb.cancel()
	Expect(tb.group.Wait()).To(Succeed())
}

func (tb *testBroker) dial(login string) *client.Client {
	c, err := client.Dial(context.Background(), tb.server.Addr(), login, client.WithRetries(0))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(c.Close)
	return c
}

// receiveAll collects frames from c on a channel until c is closed.
func receiveAll(c *client.Client) <-chan stomp.Frame {
	ch := make(chan stomp.Frame, 64)
	go func() {
		defer close(ch)
		for {
			f, err := c.Receive()
			if err != nil {
				return
			}
			ch <- f
		}
	}()
	return ch
}

// rawConn speaks the protocol byte for byte.
type rawConn struct {
	nc     net.Conn
	reader *bufio.Reader
}

func (tb *testBroker) dialRaw() *rawConn {
	nc, err := net.Dial("tcp", tb.server.Addr())
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = nc.Close() })
	return &rawConn{nc: nc, reader: bufio.NewReader(nc)}
}

func (r *rawConn) exchange(raw string) string {
	Expect(r.nc.SetDeadline(time.Now().Add(time.Second))).To(Succeed())
	_, err := r.nc.Write([]byte(raw + "\x00"))
	Expect(err).NotTo(HaveOccurred())
	reply, err := r.reader.ReadString(0)
	Expect(err).NotTo(HaveOccurred())
	return reply
}

var _ = Describe("Broker over TCP", func() {
	var tb *testBroker

	BeforeEach(func() {
		tb = startBroker()
		DeferCleanup(tb.stop)
	})

	Describe("basic publish and subscribe", func() {
		It("delivers a message to every subscriber of the topic", func() {
			a := tb.dial("a")
			b := tb.dial("b")
			Expect(a.Subscribe("stocks")).To(Succeed())
			Expect(b.Subscribe("stocks")).To(Succeed())
			Eventually(tb.broker.Topics).Should(ContainElement(broker.TopicInfo{Name: "stocks", Subscribers: 2, Live: 2}))

			aFrames := receiveAll(a)
			bFrames := receiveAll(b)
			Expect(a.Send("stocks", "price: 1")).To(Succeed())

			want := stomp.Message("stocks", "price: 1")
			Eventually(aFrames).Should(Receive(Equal(want)))
			Eventually(bFrames).Should(Receive(Equal(want)))
			Eventually(tb.broker.InFlight).Should(BeZero())
		})

		It("does not deliver messages sent before the subscription", func() {
			a := tb.dial("a")
			Expect(a.Subscribe("news")).To(Succeed())
			Eventually(tb.broker.Topics).Should(HaveLen(1))
			aFrames := receiveAll(a)
			Expect(a.Send("news", "first")).To(Succeed())
			Eventually(aFrames).Should(Receive(Equal(stomp.Message("news", "first"))))

			late := tb.dial("late")
			Expect(late.Subscribe("news")).To(Succeed())
			Eventually(tb.broker.Topics).Should(ContainElement(broker.TopicInfo{Name: "news", Subscribers: 2, Live: 2}))
			lateFrames := receiveAll(late)
			Expect(a.Send("news", "second")).To(Succeed())

			Eventually(lateFrames).Should(Receive(Equal(stomp.Message("news", "second"))))
			Consistently(lateFrames, 50*time.Millisecond).ShouldNot(Receive())
		})

		It("keeps per-topic order", func() {
			a := tb.dial("a")
			Expect(a.Subscribe("stocks")).To(Succeed())
			Eventually(tb.broker.Topics).Should(HaveLen(1))
			frames := receiveAll(a)

			for i := range 10 {
				Expect(a.Send("stocks", fmt.Sprintf("price: 22.%d", i))).To(Succeed())
			}
			for i := range 10 {
				Eventually(frames).Should(Receive(Equal(stomp.Message("stocks", fmt.Sprintf("price: 22.%d", i)))))
			}
		})
	})

	Describe("disconnect", func() {
		It("ends with exactly one receipt and nothing after it", func() {
			a := tb.dial("a")
			publisher := tb.dial("p")
			Expect(a.Subscribe("stocks")).To(Succeed())
			Eventually(tb.broker.Topics).Should(HaveLen(1))

			for i := range 20 {
				Expect(publisher.Send("stocks", fmt.Sprintf("tick %d", i))).To(Succeed())
			}
			pending, err := a.Disconnect()
			Expect(err).NotTo(HaveOccurred())
			for _, f := range pending {
				Expect(f.Command).To(Equal(stomp.CommandMessage))
			}

			_, err = a.Receive()
			Expect(err).To(HaveOccurred())
			Eventually(tb.broker.Topics).Should(ConsistOf(broker.TopicInfo{Name: "stocks"}))
		})

		It("reclaims a subscriber whose client vanished", func() {
			a := tb.dial("a")
			Expect(a.Subscribe("stocks")).To(Succeed())
			Eventually(tb.broker.Topics).Should(HaveLen(1))

			a.Close()

			Eventually(tb.broker.Topics).Should(ConsistOf(broker.TopicInfo{Name: "stocks"}))
		})
	})

	Describe("protocol errors", func() {
		It("expects CONNECT first and rejects unknown commands after it", func() {
			r := tb.dialRaw()
			Expect(r.exchange("FOO\n\n")).To(Equal("ERROR\nmessage:Expected CONNECT\n\n\x00"))
			Expect(r.exchange("CONNECT\nlogin:a\n\n")).To(Equal("CONNECTED\n\n\x00"))
			Expect(r.exchange("FOO\n\n")).To(Equal("ERROR\nmessage:Unexpected command\n\n\x00"))
		})

		It("answers a malformed frame and keeps the session", func() {
			r := tb.dialRaw()
			Expect(r.exchange("CONNECT\nlogin:a\nextra:b\n\n")).To(Equal("ERROR\nmessage:Failed to parse\n\n\x00"))
			Expect(r.exchange("CONNECT\nlogin:a\n\n")).To(Equal("CONNECTED\n\n\x00"))
		})

		It("rejects a send to a topic nobody listens on", func() {
			r := tb.dialRaw()
			Expect(r.exchange("CONNECT\nlogin:a\n\n")).To(Equal("CONNECTED\n\n\x00"))
			Expect(r.exchange("SEND\ntopic:nowhere\n\nhello\n")).To(Equal("ERROR\nmessage:Failed to add message\n\n\x00"))
		})
	})
})
