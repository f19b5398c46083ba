package adminapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SharedCode/kvenv"
)

// storeView is the JSON shape of a single KnownStores entry.
type storeView struct {
	Name          string `json:"name"`
	StructureId   int64  `json:"structureId"`
	HasDuplicates bool   `json:"hasDuplicates"`
	KeyPrefixing  bool   `json:"keyPrefixing"`
}

// getStores godoc
// @Summary List stores
// @Description Lists every store this Environment has resolved via OpenStore during its lifetime.
// @Tags Stores
// @Produce json
// @Success 200 {object} []storeView
// @Router /stores [get]
// @Security Bearer
func (s *Server) getStores(c *gin.Context) {
	known := s.env.KnownStores()
	out := make([]storeView, 0, len(known))
	for _, st := range known {
		out = append(out, storeView{
			Name:          st.Name,
			StructureId:   st.StructureId,
			HasDuplicates: st.HasDuplicates,
			KeyPrefixing:  st.KeyPrefixing,
		})
	}
	c.IndentedJSON(http.StatusOK, out)
}

// transactionView is the JSON shape of a single live transaction entry.
type transactionView struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	AgeMillis int64  `json:"ageMillis"`
}

// getTransactions godoc
// @Summary List live transactions
// @Description Lists every currently open transaction's id, creation time, and age.
// @Tags Transactions
// @Produce json
// @Success 200 {object} []transactionView
// @Router /transactions [get]
// @Security Bearer
func (s *Server) getTransactions(c *gin.Context) {
	now := kvenv.Now()
	live := s.env.LiveTransactionSnapshot()
	out := make([]transactionView, 0, len(live))
	for _, t := range live {
		out = append(out, transactionView{
			ID:        t.ID.String(),
			CreatedAt: t.Created.Format(time.RFC3339Nano),
			AgeMillis: now.Sub(t.Created).Milliseconds(),
		})
	}
	c.IndentedJSON(http.StatusOK, out)
}

// gcStatusView is the JSON shape of the GC collector's introspection snapshot.
type gcStatusView struct {
	Suspended  bool `json:"suspended"`
	QueueDepth int  `json:"queueDepth"`
}

// getGCStatus godoc
// @Summary GC status
// @Description Reports whether background reclamation is suspended and how many expired-loggable batches are queued.
// @Tags GC
// @Produce json
// @Success 200 {object} gcStatusView
// @Router /gc [get]
// @Security Bearer
func (s *Server) getGCStatus(c *gin.Context) {
	if s.gc == nil {
		c.IndentedJSON(http.StatusOK, gcStatusView{})
		return
	}
	c.IndentedJSON(http.StatusOK, gcStatusView{
		Suspended:  s.gc.Suspended(),
		QueueDepth: s.gc.QueueDepth(),
	})
}

// deferredStatusView is the JSON shape of the deferred task queue's depth.
type deferredStatusView struct {
	PendingTasks int `json:"pendingTasks"`
}

// getDeferredStatus godoc
// @Summary Deferred task queue depth
// @Description Reports how many deferred tasks are waiting on the oldest-live-transaction gate.
// @Tags Deferred
// @Produce json
// @Success 200 {object} deferredStatusView
// @Router /deferred [get]
// @Security Bearer
func (s *Server) getDeferredStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, deferredStatusView{PendingTasks: s.env.DeferredQueueDepth()})
}
