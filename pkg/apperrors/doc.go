// Package apperrors defines the domain error kinds shared across the
// authorization core and translates raw storage errors into them.
//
// Stores never leak *pq.Error or sql.ErrNoRows to callers; they pass
// failures through Translate so that handlers and collaborators only
// ever see one of the small set of kinds defined here:
//
//	if apperrors.IsKind(err, apperrors.AlreadyExists) {
//		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
//		return
//	}
package apperrors
