package position

import (
	"net/netip"
	"strings"
)

// Domain classification ids stored in the flag char.
const (
	DomainEuropeRussia        = 0
	DomainMiddleSouthAmerica  = 1
	DomainSouthEastAsia       = 2
	DomainMiddleEastWestAsia  = 3
	DomainNorthAmericaOceania = 4
	DomainAfrica              = 5
	DomainGeneric             = 6
	DomainLocal               = 7
)

var regionTLDs = map[int]string{
	DomainEuropeRussia: "ad al aq at ax ba be bg bv by cat ch cs cz cy de dk es ee eu fi fo fr fx gb gg " +
		"gi gl gr hr hu ie im is it je li lt lu lv mc md me mk mn ms mt mq nato nl no pf pl pm pt ro rs " +
		"ru se si sj sm sk su tf uk ua va yu",
	DomainMiddleSouthAmerica: "ar aw br bo cl co cr cu do ec fk gf gt gy hn jm mx ni pa pe py sr sv uy ve",
	DomainSouthEastAsia: "asia bd bn bt cn hk id in la np jp kh kp kr lk my mm mo mv ph sg tp th tl tw vn",
	DomainMiddleEastWestAsia: "ae af am az bh ge il iq ir jo kg kz kw lb ps om qa sa sy tj tm pk tr uz ye",
	DomainNorthAmericaOceania: "edu gov mil net org an as ag ai au bb bz bm bs ca cc ck cx dm fm fj gd gp " +
		"gs gu hm ht io ki kn ky lc mf mh mp nc nf nr nu nz pg pn pr pw sb tc tk to tt tv um us vc vg vi vu wf ws",
	DomainAfrica: "ac ao bf bi bj bw cd cf cg ci cm cv dj dz eg eh er et ga gh gm gn gq gw ke km lr ls " +
		"ly ma mg ml mr mu mw mz na ne ng re rw sc sd sh sl sn so st sz td tg tn tz ug za zm zr zw yt",
	DomainGeneric: "com aero arpa biz coop info jobs mobi museum name pro tel travel int",
}

// localSuffixes are name suffixes that never leave a private network.
var localSuffixes = []string{".local", ".localhost", ".lan", ".intranet", ".internal", ".home.arpa"}

var tldIDs = buildTLDIndex()

func buildTLDIndex() map[string]int {
	m := make(map[string]int, 300)
	for id, list := range regionTLDs {
		for _, tld := range strings.Fields(list) {
			m[tld] = id
		}
	}
	return m
}

// DomainID classifies host by its top-level domain.
// Unknown TLDs are generic unless the host is local.
func DomainID(host string) int {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return DomainLocal
	}
	if IsLocalHost(host) {
		return DomainLocal
	}
	if _, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return DomainGeneric
	}
	tld := ""
	if p := strings.LastIndexByte(host, '.'); p > 0 {
		tld = host[p+1:]
	}
	if id, ok := tldIDs[tld]; ok {
		return id
	}
	return DomainGeneric
}

// IsLocalHost reports whether host names a loopback, private or link-local
// address, or a name that only resolves inside a private network.
// No name resolution is done.
func IsLocalHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(strings.Trim(strings.TrimSpace(host), "[]"), "."))
	if host == "" {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified()
	}
	if host == "localhost" || !strings.Contains(host, ".") {
		return true
	}
	for _, s := range localSuffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}
