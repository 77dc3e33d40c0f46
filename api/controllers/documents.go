package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/documents"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

// PriceListPDF renders the active catalog, optionally limited to one
// category subtree, as a downloadable PDF.
func PriceListPDF(docs documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categoryID, err := validators.QueryUUID(r, "category_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		content, err := docs.PriceList(r.Context(), categoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filename := fmt.Sprintf("price-list-%s.pdf", time.Now().UTC().Format("2006-01-02"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
	}
}
