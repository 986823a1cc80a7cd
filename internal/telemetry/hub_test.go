package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/verboid/fragile/internal/callback"
	"github.com/verboid/fragile/internal/table"
)

func TestPublishReachesWebsocketClient(t *testing.T) {
	Convey("Given a hub served over a test websocket server", t, func() {
		hub := NewHub(nil)
		srv := httptest.NewServer(hub)
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		time.Sleep(10 * time.Millisecond) // let the server register the client

		hub.Publish(Snapshot{Epoch: 3, N: 5, AliveCount: 4, BestReward: 9.5})

		var got Snapshot
		So(conn.ReadJSON(&got), ShouldBeNil)

		Convey("the client receives the published snapshot", func() {
			So(got.Epoch, ShouldEqual, 3)
			So(got.AliveCount, ShouldEqual, 4)
			So(got.BestReward, ShouldEqual, 9.5)
		})
	})
}

func TestPushCallbackPublishesBestAliveWalker(t *testing.T) {
	Convey("Given a table with two alive walkers of differing reward", t, func() {
		hub := NewHub(nil)
		updates := hub.register()
		defer hub.unregister(updates)

		tbl := table.New(2, nil)
		tbl.SetCumRewards([]float64{1, 7})
		So(tbl.Update(table.Update{OobS: []bool{false, false}}), ShouldBeNil)

		cb := NewPushCallback(hub)
		reg := callback.NewRegistry(cb)
		reg.AfterWalkers(tbl)

		Convey("the snapshot reports the higher-reward walker as best", func() {
			snap := <-updates
			So(snap.AliveCount, ShouldEqual, 2)
			So(snap.BestReward, ShouldEqual, 7.0)
			So(snap.Epoch, ShouldEqual, 0)
		})

		Convey("a second call advances the epoch counter", func() {
			<-updates
			reg.AfterWalkers(tbl)
			snap := <-updates
			So(snap.Epoch, ShouldEqual, 1)
		})
	})
}
