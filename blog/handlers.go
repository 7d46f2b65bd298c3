// blog/handlers.go
package blog

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options wires the stores and collaborators a Handlers needs.
type Options struct {
	Users        UserStore
	Posts        PostStore
	SessionStore scs.Store
	Session      SessionConfig
	AdminID      int64
	PasswordCost int
	Mailer       Mailer
	Logger       *logrus.Logger
}

type Handlers struct {
	Session     *Sessions
	credentials *Credentials
	content     *Content
	gate        Gate
	mailer      Mailer
	templates   *template.Template
	log         *logrus.Logger
}

func NewHandlers(opts Options) (*Handlers, error) {
	if opts.Users == nil || opts.Posts == nil || opts.SessionStore == nil {
		return nil, errors.New("handlers need a user store, a post store and a session store")
	}
	tpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	mailer := opts.Mailer
	if mailer == nil {
		mailer = disabledMailer{}
	}
	return &Handlers{
		Session:     NewSessions(opts.SessionStore, opts.Users, opts.Session),
		credentials: NewCredentials(opts.Users, opts.PasswordCost),
		content:     NewContent(opts.Posts),
		gate:        Gate{AdminID: opts.AdminID},
		mailer:      mailer,
		templates:   tpl,
		log:         log,
	}, nil
}

func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.listPosts).Methods(http.MethodGet)
	r.HandleFunc("/register", h.register).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/login", h.login).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", h.requireAuthenticated(h.logout)).Methods(http.MethodGet)
	r.HandleFunc("/post/{id:[0-9]+}", h.requireAuthenticated(h.showPost)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/new-post", h.requireAdmin(h.newPost)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/edit-post/{id:[0-9]+}", h.requireAdmin(h.editPost)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/delete/{id:[0-9]+}", h.requireAdmin(h.deletePost)).Methods(http.MethodGet)
	r.HandleFunc("/about", h.about).Methods(http.MethodGet)
	r.HandleFunc("/contact", h.contact).Methods(http.MethodGet, http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, errors.New("page not found"), http.StatusNotFound)
	})
}

// Handler returns the full middleware chain: access log, session
// load/save, actor resolution, then the router.
func (h *Handlers) Handler() http.Handler {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return &logHandler{log: h.log, next: h.Session.LoadAndSave(h.loadActor(router))}
}

func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// userMessage strips the sentinel suffix from a wrapped validation error.
func userMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+ErrValidation.Error())
}

func postID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ActorFrom(ctx).Authenticated() {
		h.Session.Flash(ctx, "info", "You are already logged in.")
		h.redirect(w, r, "/")
		return
	}
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "register.html", map[string]interface{}{
			"title": "Register",
			"name":  "",
			"email": "",
		})
		return
	}

	user, err := h.credentials.Register(ctx, r.PostFormValue("name"), r.PostFormValue("email"), r.PostFormValue("password"))
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		h.Session.Flash(ctx, "error", "You've already signed up with that email, log in instead!")
		h.redirect(w, r, "/login")
		return
	case errors.Is(err, ErrValidation):
		h.Session.Flash(ctx, "error", userMessage(err))
		h.redirect(w, r, "/register")
		return
	case err != nil:
		h.renderError(w, r, errors.Wrap(err, "could not register user"), http.StatusInternalServerError)
		return
	}
	logFrom(r).WithField("user_id", user.ID).Info("user registered")

	if _, err := h.Session.Login(ctx, user); err != nil {
		h.renderError(w, r, errors.Wrap(err, "could not start session"), http.StatusInternalServerError)
		return
	}
	h.redirect(w, r, "/")
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ActorFrom(ctx).Authenticated() {
		logFrom(r).Info("login requested with an active session")
		h.Session.Flash(ctx, "info", "You are already logged in.")
		h.redirect(w, r, "/")
		return
	}
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "login.html", map[string]interface{}{
			"title": "Log in",
			"email": "",
		})
		return
	}

	user, err := h.credentials.Authenticate(ctx, r.PostFormValue("email"), r.PostFormValue("password"))
	if errors.Is(err, ErrInvalidCredentials) {
		logFrom(r).Info("failed login attempt")
		h.Session.Flash(ctx, "danger", "Invalid email and/or password.")
		h.redirect(w, r, "/login")
		return
	}
	if err != nil {
		h.renderError(w, r, errors.Wrap(err, "could not look up user"), http.StatusInternalServerError)
		return
	}
	if _, err := h.Session.Login(ctx, user); err != nil {
		h.renderError(w, r, errors.Wrap(err, "could not start session"), http.StatusInternalServerError)
		return
	}
	logFrom(r).WithField("user_id", user.ID).Info("user logged in")
	h.redirect(w, r, "/")
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Session.Logout(ctx); err != nil {
		h.renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	h.Session.Flash(ctx, "success", "You were logged out.")
	h.redirect(w, r, "/")
}

func (h *Handlers) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.content.ListPosts(r.Context())
	if err != nil {
		h.renderError(w, r, errors.Wrap(err, "could not retrieve posts"), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "index.html", map[string]interface{}{
		"posts": posts,
	})
}

// showPost renders a post with its comments; POST adds a comment.
func (h *Handlers) showPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := postID(r)
	if err != nil {
		h.renderError(w, r, ErrNotFound, http.StatusNotFound)
		return
	}

	if r.Method == http.MethodPost {
		_, err := h.content.AddComment(ctx, r.PostFormValue("comment"), ActorFrom(ctx), id)
		switch {
		case errors.Is(err, ErrValidation):
			h.Session.Flash(ctx, "error", userMessage(err))
		case errors.Is(err, ErrNotFound):
			h.renderError(w, r, err, http.StatusNotFound)
			return
		case errors.Is(err, ErrUnauthenticated):
			h.renderError(w, r, err, http.StatusForbidden)
			return
		case err != nil:
			h.renderError(w, r, errors.Wrap(err, "could not save comment"), http.StatusInternalServerError)
			return
		}
		h.redirect(w, r, "/post/"+strconv.FormatInt(id, 10))
		return
	}

	post, err := h.content.GetPost(ctx, id)
	if err != nil {
		h.renderError(w, r, errors.Wrap(err, "could not retrieve post"), http.StatusInternalServerError)
		return
	}
	if post == nil {
		h.renderError(w, r, errors.Wrapf(ErrNotFound, "post %d", id), http.StatusNotFound)
		return
	}
	comments, err := h.content.ListComments(ctx, id)
	if err != nil {
		h.renderError(w, r, errors.Wrap(err, "could not retrieve comments"), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "post.html", map[string]interface{}{
		"title":    post.Title,
		"post":     post,
		"comments": comments,
	})
}

func postFields(r *http.Request) PostFields {
	return PostFields{
		Title:    r.PostFormValue("title"),
		Subtitle: r.PostFormValue("subtitle"),
		Body:     r.PostFormValue("body"),
		ImgURL:   r.PostFormValue("img_url"),
	}
}

func (h *Handlers) renderPostForm(w http.ResponseWriter, r *http.Request, status int, form PostFields, action string, isEdit bool) {
	h.render(w, r, status, "make-post.html", map[string]interface{}{
		"title":   "Make post",
		"form":    form,
		"action":  action,
		"is_edit": isEdit,
	})
}

// formFailed re-renders the post form for input errors and reports whether
// err was one.
func (h *Handlers) formFailed(w http.ResponseWriter, r *http.Request, err error, form PostFields, action string, isEdit bool) bool {
	var msg string
	switch {
	case errors.Is(err, ErrValidation):
		msg = userMessage(err)
	case errors.Is(err, ErrDuplicateTitle):
		msg = "A post with that title already exists."
	default:
		return false
	}
	h.Session.Flash(r.Context(), "error", msg)
	h.renderPostForm(w, r, http.StatusUnprocessableEntity, form, action, isEdit)
	return true
}

func (h *Handlers) newPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodGet {
		h.renderPostForm(w, r, http.StatusOK, PostFields{}, "/new-post", false)
		return
	}

	form := postFields(r)
	post, err := h.content.CreatePost(ctx, form, ActorFrom(ctx))
	if err != nil {
		if h.formFailed(w, r, err, form, "/new-post", false) {
			return
		}
		h.renderError(w, r, errors.Wrap(err, "could not create post"), http.StatusInternalServerError)
		return
	}
	logFrom(r).WithField("post_id", post.ID).Info("post created")
	h.redirect(w, r, "/")
}

func (h *Handlers) editPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := postID(r)
	if err != nil {
		h.renderError(w, r, ErrNotFound, http.StatusNotFound)
		return
	}
	action := "/edit-post/" + strconv.FormatInt(id, 10)

	if r.Method == http.MethodGet {
		post, err := h.content.GetPost(ctx, id)
		if err != nil {
			h.renderError(w, r, errors.Wrap(err, "could not retrieve post"), http.StatusInternalServerError)
			return
		}
		if post == nil {
			h.renderError(w, r, errors.Wrapf(ErrNotFound, "post %d", id), http.StatusNotFound)
			return
		}
		h.renderPostForm(w, r, http.StatusOK, post.Fields(), action, true)
		return
	}

	form := postFields(r)
	post, err := h.content.UpdatePost(ctx, id, form, ActorFrom(ctx))
	if err != nil {
		if h.formFailed(w, r, err, form, action, true) {
			return
		}
		if errors.Is(err, ErrNotFound) {
			h.renderError(w, r, err, http.StatusNotFound)
			return
		}
		h.renderError(w, r, errors.Wrap(err, "could not update post"), http.StatusInternalServerError)
		return
	}
	logFrom(r).WithField("post_id", post.ID).Info("post updated")
	h.redirect(w, r, "/post/"+strconv.FormatInt(post.ID, 10))
}

func (h *Handlers) deletePost(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)
	if err != nil {
		h.renderError(w, r, ErrNotFound, http.StatusNotFound)
		return
	}
	err = h.content.DeletePost(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.renderError(w, r, err, http.StatusNotFound)
		return
	}
	if err != nil {
		h.renderError(w, r, errors.Wrap(err, "could not delete post"), http.StatusInternalServerError)
		return
	}
	logFrom(r).WithField("post_id", id).Info("post deleted")
	h.redirect(w, r, "/")
}

func (h *Handlers) about(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "about.html", map[string]interface{}{"title": "About"})
}

func (h *Handlers) contact(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"title":    "Contact",
		"msg_sent": false,
		"contact":  ContactMessage{},
		"error":    "",
	}
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "contact.html", data)
		return
	}

	msg := ContactMessage{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Phone:   r.PostFormValue("phone"),
		Message: r.PostFormValue("message"),
	}
	if err := msg.Validate(); err != nil {
		data["contact"] = msg
		data["error"] = userMessage(err)
		h.render(w, r, http.StatusUnprocessableEntity, "contact.html", data)
		return
	}
	if err := h.mailer.Send(r.Context(), msg); err != nil {
		logFrom(r).WithError(err).Error("contact mail not delivered")
		data["contact"] = msg
		data["error"] = "Sorry, your message could not be sent right now. Please try again later."
		h.render(w, r, http.StatusBadGateway, "contact.html", data)
		return
	}
	logFrom(r).Info("contact mail sent")
	data["msg_sent"] = true
	h.render(w, r, http.StatusOK, "contact.html", data)
}
