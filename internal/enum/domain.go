package enum

type NameserverStatus string

const (
	NameserverPending  NameserverStatus = "pending"
	NameserverVerified NameserverStatus = "verified"
)

func (s NameserverStatus) String() string {
	return string(s)
}

type MailDirectoryStatus string

const (
	MailDirectoryNone                MailDirectoryStatus = "none"
	MailDirectoryPendingVerification MailDirectoryStatus = "pending_verification"
	MailDirectoryVerified            MailDirectoryStatus = "verified"
	MailDirectoryFailed              MailDirectoryStatus = "failed"
)

func (s MailDirectoryStatus) String() string {
	return string(s)
}

type Registrar string

const (
	RegistrarGoDaddy     Registrar = "godaddy"
	RegistrarNamecheap   Registrar = "namecheap"
	RegistrarCloudflare  Registrar = "cloudflare"
	RegistrarGoogle      Registrar = "google"
	RegistrarSquarespace Registrar = "squarespace"
	RegistrarPorkbun     Registrar = "porkbun"
	RegistrarOther       Registrar = "other"
)

func (r Registrar) String() string {
	return string(r)
}

func GetRegistrar(s string) Registrar {
	switch r := Registrar(s); r {
	case RegistrarGoDaddy, RegistrarNamecheap, RegistrarCloudflare, RegistrarGoogle, RegistrarSquarespace, RegistrarPorkbun:
		return r
	default:
		return RegistrarOther
	}
}
