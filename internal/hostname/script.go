// ABOUTME: The POSIX shell script streamed into the guest by the Publisher.
// The script is static; the hostname and fallback interface arrive as bound
// environment variables (NEW_HOSTNAME, FALLBACK_IFACE), never interpolated.
package hostname

// publishScript re-validates the hostname, guards on OS family and IPv4
// addressing, then writes the hostname files, hosts alias, DHCP client
// configuration, and an interface-scoped networkd profile before triggering
// lease re-advertisement. Guard short-circuits print "SKIP <reason>" and exit
// zero; success prints "APPLIED <hostname>". A failed configuration write
// aborts the script before the marker, so the session reports a non-zero
// status instead of success. Every file edit is replace-if-present or
// append-if-absent so re-runs converge on the same state.
const publishScript = `set -eu

h=$(printf '%s' "${NEW_HOSTNAME:-}" | tr '[:upper:]' '[:lower:]' | tr -cd 'a-z0-9-' | sed -e 's/^-*//' -e 's/-*$//')
if [ -z "$h" ] || [ "${#h}" -gt 63 ]; then
    echo "hostname rejected by guest validation" >&2
    echo "SKIP invalid hostname after normalization"
    exit 0
fi

os_id=""
os_like=""
if [ -r /etc/os-release ]; then
    . /etc/os-release
    os_id="${ID:-}"
    os_like="${ID_LIKE:-}"
fi
case " $os_id $os_like " in
*debian*|*ubuntu*) ;;
*)
    echo "SKIP unsupported os family ${os_id:-unknown}"
    exit 0
    ;;
esac

iface=$(ip -4 route show default 2>/dev/null | awk '/default/ {print $5; exit}')
[ -n "$iface" ] || iface="${FALLBACK_IFACE:-eth0}"
if ! ip -4 -o addr show dev "$iface" 2>/dev/null | grep -q 'inet '; then
    echo "SKIP no ipv4 address on $iface"
    exit 0
fi

if command -v hostnamectl >/dev/null 2>&1; then
    hostnamectl set-hostname "$h" 2>/dev/null || true
fi
printf '%s\n' "$h" >/etc/hostname
hostname "$h" 2>/dev/null || true

if grep -q '^127\.0\.1\.1' /etc/hosts 2>/dev/null; then
    sed -i "s/^127\.0\.1\.1.*/127.0.1.1 $h/" /etc/hosts
else
    printf '127.0.1.1 %s\n' "$h" >>/etc/hosts
fi

if command -v dhclient >/dev/null 2>&1 || [ -f /etc/dhcp/dhclient.conf ]; then
    mkdir -p /etc/dhcp
    if ! grep -q '^send host-name' /etc/dhcp/dhclient.conf 2>/dev/null; then
        echo 'send host-name = gethostname();' >>/etc/dhcp/dhclient.conf
    fi
fi

networkd_active=0
if command -v systemctl >/dev/null 2>&1 && systemctl is-active --quiet systemd-networkd 2>/dev/null; then
    networkd_active=1
    mkdir -p /etc/systemd/network
    cat >"/etc/systemd/network/10-$iface-dhcp.network" <<PROFILE
[Match]
Name=$iface

[Network]
DHCP=ipv4

[DHCPv4]
SendHostname=true
Hostname=$h
PROFILE
fi

if command -v dhclient >/dev/null 2>&1; then
    dhclient -r "$iface" >/dev/null 2>&1 || true
    dhclient "$iface" >/dev/null 2>&1 || true
elif [ "$networkd_active" = "1" ]; then
    systemctl restart systemd-networkd >/dev/null 2>&1 || true
else
    systemctl restart networking >/dev/null 2>&1 || true
fi

echo "APPLIED $h"
`
