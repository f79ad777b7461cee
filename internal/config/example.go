package config

// Example is a sample config.yml covering every supported key.
const Example = `# Single instance. "config" may also be a list of instances.
config:
  name: web-challenge
  remote: local
  project: default

  # Exactly one of launch or copy.
  launch:
    image:
      remote: images
      name: ubuntu/22.04
    config:
      limits.cpu: 1
      limits.memory: 1GiB
    is_virtual_machine: false
  # copy:
  #   name: template-ubuntu-2204
  #   remote: local      # defaults to config.remote
  #   project: default   # defaults to config.project
  #   config:
  #     limits.cpu: 1

  network:
    name: challenges
    type: ovn            # required when the network has to be created
    description: Challenge network
    action: update       # create | update | skip (default) | lookup
    device: eth0         # NIC device name (default eth0)
    config:
      network: default
    listen_address: 45.45.148.200   # required when forwards are present
    static_ip: true
    ipv4: 10.66.241.3    # explicit address, or false to ignore IPv4 when waiting
    # ipv6: false
    forwards:
      - source: 21234
        destination: 80
        protocol: tcp    # tcp (default) | udp
    acls:
      - name: allow-ingress-external      # reused when it already exists
      - name: web-challenge-egress        # created when absent
        description: Egress for web-challenge
        egress:
          - action: allow
            state: enabled
            destination: 10.66.241.1
            destination_port: 53
            protocol: udp
        ingress: []
`
