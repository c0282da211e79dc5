package integration

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stacklok/pinphoto-server/internal/api/v1"
	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/test-integration/pinphoto-api/helpers"
)

// clientView mirrors what a collection view rendering a pin stream would show
type clientView struct {
	grid  changes.Grid
	state status.SyncState
	ops   []changes.Op
}

// drain applies every event already delivered on events
func (c *clientView) drain(events <-chan helpers.Event) {
	GinkgoHelper()
	for {
		select {
		case ev, ok := <-events:
			Expect(ok).To(BeTrue(), "stream ended early")
			switch ev.Name {
			case "changes":
				var ce v1.ChangesEvent
				Expect(json.Unmarshal([]byte(ev.Data), &ce)).To(Succeed())
				Expect(c.grid.Apply(ce.Instructions)).To(Succeed())
				for _, in := range ce.Instructions {
					c.ops = append(c.ops, in.Op)
				}
			case "sync":
				Expect(json.Unmarshal([]byte(ev.Data), &c.state)).To(Succeed())
			default:
				Fail("unexpected event " + ev.Name + ": " + ev.Data)
			}
		default:
			return
		}
	}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

var _ = Describe("Pin event stream", Label("stream"), func() {
	var (
		tempDir      string
		provider     *helpers.MockProvider
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("pinphoto-stream-")
		provider = helpers.NewMockProvider(4, 3)
		configFile := helpers.WriteConfigYAML(tempDir, provider.Endpoint(), 4, "")
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		provider.Close()
		cleanupTempDir(tempDir)
	})

	openView := func(pinID uuid.UUID) (*clientView, <-chan helpers.Event) {
		GinkgoHelper()
		events, stop := serverHelper.OpenEvents(pinID)
		DeferCleanup(stop)

		var ev helpers.Event
		Eventually(events, 5*time.Second).Should(Receive(&ev))
		Expect(ev.Name).To(Equal("snapshot"))
		var snap v1.SnapshotEvent
		Expect(json.Unmarshal([]byte(ev.Data), &snap)).To(Succeed())

		return &clientView{grid: changes.Grid{PinID: pinID, Cells: store.IDs(snap.Photos)}}, events
	}

	// converge waits until the client view matches the stored listing and the fetch is idle
	converge := func(view *clientView, events <-chan helpers.Event, pinID uuid.UUID) {
		GinkgoHelper()
		Eventually(func(g Gomega) {
			view.drain(events)
			g.Expect(view.state.Loading()).To(BeFalse())
			g.Expect(idStrings(view.grid.Cells)).To(Equal(idStrings(store.IDs(serverHelper.ListPhotos(pinID)))))
		}, 10*time.Second, 50*time.Millisecond).Should(Succeed())
	}

	It("keeps a client grid identical to the stored listing", func() {
		pin := serverHelper.CreatePin(40.0, -74.0)
		serverHelper.WaitForIdle(pin.ID)

		view, events := openView(pin.ID)
		Expect(view.grid.Cells).To(HaveLen(4))
		converge(view, events, pin.ID)
		Expect(view.state.Status).To(Equal(status.CodeComplete))

		victim := view.grid.Cells[2]
		code, _ := serverHelper.Do(http.MethodDelete,
			"/v1/pins/"+pin.ID.String()+"/photos/"+victim.String(), nil)
		Expect(code).To(Equal(http.StatusNoContent))
		converge(view, events, pin.ID)
		Expect(view.grid.Cells).To(HaveLen(3))
		Expect(view.grid.Cells).NotTo(ContainElement(victim))
		Expect(view.ops).To(Equal([]changes.Op{changes.OpDelete}))

		code, body := serverHelper.Do(http.MethodPost, "/v1/pins/"+pin.ID.String()+"/sync/next", nil)
		Expect(code).To(Equal(http.StatusAccepted), string(body))
		Eventually(func() int {
			return len(serverHelper.ListPhotos(pin.ID))
		}, 10*time.Second, 20*time.Millisecond).Should(Equal(7))

		converge(view, events, pin.ID)
		Expect(view.grid.Cells).To(HaveLen(7))
		Expect(view.ops).To(HaveLen(5))
		Expect(view.ops[1:]).To(HaveEach(changes.OpInsert))
	})

	It("starts the first fetch of an empty pin when its stream opens", func() {
		pin := serverHelper.CreatePin(1.29, 103.85)
		serverHelper.WaitForIdle(pin.ID)

		for _, p := range serverHelper.ListPhotos(pin.ID) {
			code, _ := serverHelper.Do(http.MethodDelete, "/v1/pins/"+pin.ID.String()+"/photos/"+p.ID.String(), nil)
			Expect(code).To(Equal(http.StatusNoContent))
		}

		view, events := openView(pin.ID)
		Expect(view.grid.Cells).To(BeEmpty())

		Eventually(func() int {
			return len(serverHelper.ListPhotos(pin.ID))
		}, 10*time.Second, 20*time.Millisecond).Should(Equal(4))
		converge(view, events, pin.ID)
		Expect(view.grid.Cells).To(HaveLen(4))
		Expect(provider.Searches()).To(Equal([]int{1, 1}))
	})

	It("rejects a stream for an unknown pin", func() {
		code, _ := serverHelper.Do(http.MethodGet, "/v1/pins/"+uuid.NewString()+"/events", nil)
		Expect(code).To(Equal(http.StatusNotFound))
	})
})
