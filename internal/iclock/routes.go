package iclock

import "github.com/gorilla/mux"

func RegisterRoutes(r *mux.Router, h *Handler) {
	sub := r.PathPrefix("/iclock").Subrouter()
	sub.HandleFunc("/cdata", h.Handshake).Methods("GET")
	sub.HandleFunc("/getrequest", h.GetRequest).Methods("GET")
	sub.HandleFunc("/cdata", h.PostData).Methods("POST")
}
