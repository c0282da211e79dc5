package integration

import (
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/test-integration/pinphoto-api/helpers"
)

var _ = Describe("Pin photo sync", Label("sync"), func() {
	var (
		tempDir      string
		provider     *helpers.MockProvider
		configFile   string
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("pinphoto-sync-")
		provider = helpers.NewMockProvider(3, 2)
		configFile = helpers.WriteConfigYAML(tempDir, provider.Endpoint(), 3, "")
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		provider.Close()
		cleanupTempDir(tempDir)
	})

	Context("with a healthy provider", func() {
		BeforeEach(func() {
			Expect(serverHelper.StartServer()).To(Succeed())
			serverHelper.WaitForServerReady(10 * time.Second)
		})

		It("fetches the first page as soon as a pin is created", func() {
			pin := serverHelper.CreatePin(40.0, -74.0)

			state := serverHelper.WaitForIdle(pin.ID)
			Expect(state.Status).To(Equal(status.CodeComplete))
			Expect(state.Stored).To(Equal(3))
			Expect(state.Skipped).To(BeZero())

			photos := serverHelper.ListPhotos(pin.ID)
			Expect(photos).To(HaveLen(3))
			for _, p := range photos {
				Expect(p.PinID).To(Equal(pin.ID))
				Expect(p.ContentType).To(Equal("image/png"))
			}
			Expect(provider.Searches()).To(Equal([]int{1}))
		})

		It("serves the stored image bytes", func() {
			pin := serverHelper.CreatePin(48.85, 2.35)
			serverHelper.WaitForIdle(pin.ID)

			photo := serverHelper.ListPhotos(pin.ID)[0]
			code, body := serverHelper.Do(http.MethodGet,
				"/v1/pins/"+pin.ID.String()+"/photos/"+photo.ID.String()+"/image", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveLen(photo.Size))
		})

		It("walks the provider's pages and wraps to the first", func() {
			pin := serverHelper.CreatePin(51.5, -0.12)
			serverHelper.WaitForIdle(pin.ID)

			for _, want := range []int{2, 1} {
				code, body := serverHelper.Do(http.MethodPost, "/v1/pins/"+pin.ID.String()+"/sync/next", nil)
				Expect(code).To(Equal(http.StatusAccepted), string(body))
				Eventually(func() int {
					st := serverHelper.SyncState(pin.ID)
					if st.Loading() {
						return 0
					}
					return st.Page
				}, 10*time.Second, 50*time.Millisecond).Should(Equal(want))
			}
			Expect(provider.Searches()).To(Equal([]int{1, 2, 1}))
		})

		It("removes photos and pins", func() {
			pin := serverHelper.CreatePin(35.68, 139.69)
			serverHelper.WaitForIdle(pin.ID)

			photos := serverHelper.ListPhotos(pin.ID)
			photoPath := "/v1/pins/" + pin.ID.String() + "/photos/" + photos[1].ID.String()

			code, _ := serverHelper.Do(http.MethodDelete, photoPath, nil)
			Expect(code).To(Equal(http.StatusNoContent))
			code, _ = serverHelper.Do(http.MethodDelete, photoPath, nil)
			Expect(code).To(Equal(http.StatusNotFound))

			remaining := serverHelper.ListPhotos(pin.ID)
			Expect(remaining).To(HaveLen(2))
			Expect(remaining[0].ID).To(Equal(photos[0].ID))
			Expect(remaining[1].ID).To(Equal(photos[2].ID))

			code, _ = serverHelper.Do(http.MethodDelete, "/v1/pins/"+pin.ID.String(), nil)
			Expect(code).To(Equal(http.StatusNoContent))
			code, _ = serverHelper.Do(http.MethodGet, "/v1/pins/"+pin.ID.String()+"/photos", nil)
			Expect(code).To(Equal(http.StatusNotFound))
		})

		It("rejects invalid coordinates", func() {
			code, body := serverHelper.Do(http.MethodPost, "/v1/pins", map[string]float64{"latitude": 91, "longitude": 0})
			Expect(code).To(Equal(http.StatusBadRequest), string(body))
		})
	})

	Context("when a download fails", func() {
		BeforeEach(func() {
			provider.Break(1, 1)
			Expect(serverHelper.StartServer()).To(Succeed())
			serverHelper.WaitForServerReady(10 * time.Second)
		})

		It("stores the rest of the page and reports the skipped photo", func() {
			pin := serverHelper.CreatePin(40.0, -74.0)

			state := serverHelper.WaitForIdle(pin.ID)
			Expect(state.Status).To(Equal(status.CodePartial))
			Expect(state.Stored).To(Equal(2))
			Expect(state.Skipped).To(Equal(1))
			Expect(serverHelper.ListPhotos(pin.ID)).To(HaveLen(2))
		})
	})

	Context("with a snapshot", func() {
		BeforeEach(func() {
			configFile = helpers.WriteConfigYAML(tempDir, provider.Endpoint(), 3, filepath.Join(tempDir, "photos.json"))
			serverHelper = helpers.NewServerTestHelper(ctx, configFile)
			Expect(serverHelper.StartServer()).To(Succeed())
			serverHelper.WaitForServerReady(10 * time.Second)
		})

		It("keeps pins and photos across restarts without refetching", func() {
			pin := serverHelper.CreatePin(-33.87, 151.21)
			serverHelper.WaitForIdle(pin.ID)
			before := serverHelper.ListPhotos(pin.ID)

			Expect(serverHelper.StopServer()).To(Succeed())

			serverHelper = helpers.NewServerTestHelper(ctx, configFile)
			Expect(serverHelper.StartServer()).To(Succeed())
			serverHelper.WaitForServerReady(10 * time.Second)

			after := serverHelper.ListPhotos(pin.ID)
			Expect(after).To(HaveLen(len(before)))
			for i := range before {
				Expect(after[i].ID).To(Equal(before[i].ID))
			}
			Expect(serverHelper.GetPin(pin.ID).PhotoCount).To(Equal(3))
			Consistently(provider.Searches, 300*time.Millisecond).Should(Equal([]int{1}))
		})
	})
})
